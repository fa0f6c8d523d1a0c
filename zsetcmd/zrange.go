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
	"strings"

	"github.com/kvredis/proxy/config"
	"github.com/kvredis/proxy/keydesign"
	"github.com/kvredis/proxy/model"
	"github.com/kvredis/proxy/proxyerrors"
)

// ZRange implements ZRANGE key start stop [WITHSCORES].
func (c *Context) ZRange(slot uint32, args [][]byte) (interface{}, error) {
	return c.rangeByRank(slot, args, false)
}

// ZRevRange implements ZREVRANGE key start stop [WITHSCORES], per spec.md
// §4.6.3: same rank normalization as ZRANGE, reversed order. The v0 KV path
// scans the score-ordered SubKey2 space in reverse; if the engine cannot do
// a reverse scan the whole zset is materialized instead.
func (c *Context) ZRevRange(slot uint32, args [][]byte) (interface{}, error) {
	return c.rangeByRank(slot, args, true)
}

func (c *Context) rangeByRank(slot uint32, args [][]byte, reverse bool) (interface{}, error) {
	if len(args) != 3 && len(args) != 4 {
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

	withScores := false
	if len(args) == 4 {
		if !strings.EqualFold(string(args[3]), "WITHSCORES") {
			return nil, proxyerrors.ErrSyntax
		}
		withScores = true
	}

	zs, exists, err := c.loadForRead(slot, key, false)
	switch err {
	case nil:
		if !exists {
			return []interface{}{}, nil
		}
		members := zs.RangeByRank(0, zs.Len()-1)
		return c.sliceByRank(members, start, stop, reverse, withScores), nil
	case errNotMaterialized:
		return c.rangeByRankColdPath(slot, key, start, stop, reverse, withScores)
	default:
		return nil, err
	}
}

func (c *Context) sliceByRank(members []model.Member, start, stop int, reverse, withScores bool) interface{} {
	if reverse {
		reversed := make([]model.Member, len(members))
		for i, m := range members {
			reversed[len(members)-1-i] = m
		}
		members = reversed
	}

	lo, hi, ok := normalizeRange(start, stop, len(members))
	if !ok {
		return []interface{}{}
	}
	return membersToReply(members[lo:hi+1], withScores)
}

// rangeByRankColdPath answers ZRANGE/ZREVRANGE for a key that is not
// materialized, per spec.md §4.6.3: it scans the score-ordered SubKey2 space
// directly in the order the reply needs (forward for ZRANGE, backward for
// ZREVRANGE) rather than materializing the whole zset, mirroring
// rankColdPath's use of c.Engine.SupportsReverseScan(). Start and stop
// bounds are resolved against meta.Size, the key's cached member count, so no
// scan is needed just to normalize negative indices.
func (c *Context) rangeByRankColdPath(slot uint32, key []byte, start, stop int, reverse, withScores bool) (interface{}, error) {
	meta, err := c.resolveMetaForRead(slot, key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return []interface{}{}, nil
	}

	if c.Encoding == config.EncodingV1 {
		cmd := "ZRANGE"
		if reverse {
			cmd = "ZREVRANGE"
		}
		cmdArgs := []interface{}{cmd, string(key), start, stop}
		if withScores {
			cmdArgs = append(cmdArgs, "WITHSCORES")
		}
		reply, err := c.StorageRedis.SendCommand(context.Background(), cmdArgs...)
		if err != nil {
			return nil, err
		}
		return reply, nil
	}

	if reverse && !c.Engine.SupportsReverseScan() {
		zs, err := c.loadFromKVv0(slot, meta, key)
		if err != nil {
			return nil, err
		}
		c.Cache.Put(c.cacheKeyFor(slot, meta, key), zs)
		members := zs.RangeByRank(0, zs.Len()-1)
		return c.sliceByRank(members, start, stop, reverse, withScores), nil
	}

	lo, hi, ok := normalizeRange(start, stop, int(meta.Size))
	if !ok {
		return []interface{}{}, nil
	}

	prefix := keydesign.ZSetSubKey2Prefix(slot, meta.Version, key)
	members := make([]model.Member, 0, hi-lo+1)
	rank := 0
	err = c.Engine.ScanByPrefix(prefix, reverse, func(k, _ []byte) bool {
		if rank < lo {
			rank++
			return true
		}
		members = append(members, model.Member{
			Name:  string(keydesign.DecodeZSetMemberBySubKey2(k, slot, meta.Version, key)),
			Score: keydesign.DecodeZSetScoreBySubKey2(k, slot, meta.Version, key),
		})
		rank++
		return rank <= hi
	})
	if err != nil {
		return nil, err
	}
	return membersToReply(members, withScores), nil
}
