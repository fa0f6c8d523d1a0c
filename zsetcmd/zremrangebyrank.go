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
	"github.com/kvredis/proxy/metadata"
	"github.com/kvredis/proxy/model"
	"github.com/kvredis/proxy/proxyerrors"
	"github.com/tidwall/redcon"
)

// ZRemRangeByRank implements ZREMRANGEBYRANK key start stop: rank requires
// knowing the whole ordering, so the cold path always materializes the
// zset first (there is no way to bound a rank-based scan by key range).
func (c *Context) ZRemRangeByRank(slot uint32, args [][]byte) (interface{}, error) {
	if len(args) != 3 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}
	key := args[0]

	start, err := parseIntStrict(string(args[1]))
	if err != nil {
		return nil, err
	}
	stop, err := parseIntStrict(string(args[2]))
	if err != nil {
		return nil, err
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

	if zs, ok := c.WriteBuffer.Get(ck); ok {
		return c.remRangeByRankInPlace(slot, meta, key, zs, start, stop)
	}
	if zs, ok := c.Cache.Get(ck); ok {
		return c.remRangeByRankInPlace(slot, meta, key, zs, start, stop)
	}

	if c.Encoding == config.EncodingV1 {
		loaded, err := c.loadFromStorageRedis(key)
		if err != nil {
			return nil, err
		}
		return c.remRangeByRankV1(slot, meta, key, loaded, start, stop)
	}

	loaded, err := c.loadFromKVv0(slot, meta, key)
	if err != nil {
		return nil, err
	}
	return c.remRangeByRankV0(slot, meta, key, loaded, start, stop)
}

func (c *Context) remRangeByRankInPlace(slot uint32, meta *metadata.KeyMeta, key []byte, zs *model.ZSet, start, stop int) (interface{}, error) {
	lo, hi, ok := normalizeRange(start, stop, zs.Len())
	if !ok {
		c.commit(slot, meta, key, zs)
		return redcon.SimpleInt(0), nil
	}
	removed := zs.RemoveRangeByRank(lo, hi)

	if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
		return nil, err
	}
	c.commit(slot, meta, key, zs)
	return redcon.SimpleInt(removed), nil
}

func (c *Context) remRangeByRankV0(slot uint32, meta *metadata.KeyMeta, key []byte, zs *model.ZSet, start, stop int) (interface{}, error) {
	lo, hi, ok := normalizeRange(start, stop, zs.Len())
	if !ok {
		return redcon.SimpleInt(0), nil
	}
	victims := zs.RangeByRank(lo, hi)

	removed := 0
	for _, v := range victims {
		okRemoved, err := c.removeMemberV0(slot, meta, key, []byte(v.Name))
		if err != nil {
			return nil, err
		}
		if okRemoved {
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

func (c *Context) remRangeByRankV1(slot uint32, meta *metadata.KeyMeta, key []byte, zs *model.ZSet, start, stop int) (interface{}, error) {
	lo, hi, ok := normalizeRange(start, stop, zs.Len())
	if !ok {
		c.Cache.Put(c.cacheKeyFor(slot, meta, key), zs)
		return redcon.SimpleInt(0), nil
	}
	victims := zs.RangeByRank(lo, hi)
	removed := zs.RemoveRangeByRank(lo, hi)

	cmdArgs := make([]interface{}, 0, len(victims)+2)
	cmdArgs = append(cmdArgs, "ZREM", string(key))
	for _, v := range victims {
		cmdArgs = append(cmdArgs, v.Name)
	}
	if _, err := c.StorageRedis.SendCommand(context.Background(), cmdArgs...); err != nil {
		return nil, err
	}

	if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
		return nil, err
	}
	c.commit(slot, meta, key, zs)
	return redcon.SimpleInt(removed), nil
}
