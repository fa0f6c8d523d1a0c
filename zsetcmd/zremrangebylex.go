/*
 * Copyright (c) 2024. Shuojiang Liu.
 * Licensed under the MIT License (the "License");
 * you may not use this file except in compliance with the License.
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package zsetcmd

import (
	"context"

	"github.com/kvredis/proxy/config"
	"github.com/kvredis/proxy/keydesign"
	"github.com/kvredis/proxy/metadata"
	"github.com/kvredis/proxy/proxyerrors"
	"github.com/tidwall/redcon"
)

// ZRemRangeByLex implements ZREMRANGEBYLEX key min max, per spec.md §4.6.2:
// same min/max parsing and empty-interval short-circuit as ZRANGEBYLEX, then
// removes every matching member from whichever tier holds the key.
func (c *Context) ZRemRangeByLex(slot uint32, args [][]byte) (interface{}, error) {
	if len(args) != 3 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}
	key, minRaw, maxRaw := args[0], args[1], args[2]

	min, err := keydesign.ParseLexBound(minRaw)
	if err != nil {
		return nil, err
	}
	max, err := keydesign.ParseLexBound(maxRaw)
	if err != nil {
		return nil, err
	}
	if keydesign.ImpossibleInterval(min, max) {
		return redcon.SimpleInt(0), nil
	}

	meta, err := c.Meta.Get(context.Background(), slot, key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return redcon.SimpleInt(0), nil
	}
	if meta.Type != metadata.TypeZSet {
		return nil, metadata.ErrWrongType
	}

	ck := c.cacheKeyFor(slot, meta, key)
	checkLex := func(member []byte) bool { return keydesign.CheckLex(member, min, max) }

	// Write-buffer / LRU tier: mutate in place if either already holds the
	// materialized object, per spec.md §4.6.2.
	if zs, ok := c.WriteBuffer.Get(ck); ok {
		removed := zs.RemoveRangeByLex(checkLex)
		if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
			return nil, err
		}
		c.commit(slot, meta, key, zs)
		return redcon.SimpleInt(len(removed)), nil
	}
	if zs, ok := c.Cache.Get(ck); ok {
		removed := zs.RemoveRangeByLex(checkLex)
		if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
			return nil, err
		}
		c.commit(slot, meta, key, zs)
		return redcon.SimpleInt(len(removed)), nil
	}

	if c.Encoding == config.EncodingV1 {
		return c.remRangeByLexV1(slot, meta, key, min, max)
	}
	return c.remRangeByLexV0(slot, meta, key, min, max)
}

// remRangeByLexV0 enumerates members to remove via the same scan
// rangeByLexColdPath uses (without a limit), then deletes each sub-key pair
// and updates the stored member count (KeyMeta.Size) — the "shared v0 remove-these-members
// subroutine" spec.md §4.6.2 describes.
func (c *Context) remRangeByLexV0(slot uint32, meta *metadata.KeyMeta, key []byte, min, max keydesign.LexBound) (interface{}, error) {
	prefix := keydesign.ZSetSubKey1Prefix(slot, meta.Version, key)

	var startKey, endKey []byte
	if min.IsMin() {
		startKey = prefix
	} else {
		startKey = keydesign.ZSetMemberSubKey1(slot, meta.Version, key, min.Value)
	}
	if max.IsMax() {
		endKey = keydesign.NextBytes(prefix)
	} else {
		endKey = keydesign.NextBytes(keydesign.ZSetMemberSubKey1(slot, meta.Version, key, max.Value))
	}

	var victims [][]byte
	err := c.Engine.ScanByStartEnd(startKey, endKey, false, func(k, _ []byte) bool {
		member := keydesign.DecodeZSetMemberBySubKey1(k, slot, meta.Version, key)
		if keydesign.CheckLex(member, min, max) {
			victims = append(victims, append([]byte(nil), member...))
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	removed := 0
	for _, member := range victims {
		ok, err := c.removeMemberV0(slot, meta, key, member)
		if err != nil {
			return nil, err
		}
		if ok {
			removed++
		}
	}

	newSize := int(meta.Size) - removed
	if newSize < 0 {
		newSize = 0
	}
	if err := c.saveMeta(slot, key, meta, newSize); err != nil {
		return nil, err
	}
	c.Cache.Remove(c.cacheKeyFor(slot, meta, key))

	return redcon.SimpleInt(removed), nil
}

// remRangeByLexV1 materializes the zset via loadFromStorageRedis, applies
// the removal in memory, forwards a ZREM of the removed members to storage
// Redis, then updates the metadata and mirrors the result to the LRU, per
// spec.md §4.6.2's v1 branch.
func (c *Context) remRangeByLexV1(slot uint32, meta *metadata.KeyMeta, key []byte, min, max keydesign.LexBound) (interface{}, error) {
	zs, err := c.loadFromStorageRedis(key)
	if err != nil {
		return nil, err
	}

	removed := zs.RemoveRangeByLex(func(member []byte) bool { return keydesign.CheckLex(member, min, max) })
	if len(removed) == 0 {
		c.Cache.Put(c.cacheKeyFor(slot, meta, key), zs)
		return redcon.SimpleInt(0), nil
	}

	cmdArgs := make([]interface{}, 0, len(removed)+2)
	cmdArgs = append(cmdArgs, "ZREM", string(key))
	for _, m := range removed {
		cmdArgs = append(cmdArgs, m.Name)
	}
	if _, err := c.StorageRedis.SendCommand(context.Background(), cmdArgs...); err != nil {
		return nil, err
	}

	if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
		return nil, err
	}
	c.commit(slot, meta, key, zs)
	return redcon.SimpleInt(len(removed)), nil
}
