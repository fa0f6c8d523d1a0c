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
	"bytes"
	"context"
	"strings"

	"github.com/kvredis/proxy/config"
	"github.com/kvredis/proxy/keydesign"
	"github.com/kvredis/proxy/proxyerrors"
)

// ZRank implements ZRANK key member [WITHSCORE], the read-only sibling of
// ZREVRANK (spec.md §4.6.6).
func (c *Context) ZRank(slot uint32, args [][]byte) (interface{}, error) {
	return c.rank(slot, args, false)
}

// ZRevRank implements ZREVRANK key member [WITHSCORE], per spec.md §4.6.6:
// a reverse scan over the score-ordered SubKey2 space, incrementing an index
// until a byte-equality match on the decoded member is found. Falls back to
// materializing via the LRU loader when the engine cannot reverse-scan.
func (c *Context) ZRevRank(slot uint32, args [][]byte) (interface{}, error) {
	return c.rank(slot, args, true)
}

func (c *Context) rank(slot uint32, args [][]byte, reverse bool) (interface{}, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}
	key, member := args[0], args[1]

	withScore := false
	if len(args) == 3 {
		if !strings.EqualFold(string(args[2]), "WITHSCORE") {
			return nil, proxyerrors.ErrSyntax
		}
		withScore = true
	}

	zs, exists, err := c.loadForRead(slot, key, false)
	switch err {
	case nil:
		if !exists {
			return nil, nil
		}
		rank := zs.Rank(string(member))
		if rank < 0 {
			return nil, nil
		}
		if reverse {
			rank = zs.Len() - 1 - rank
		}
		return c.rankReply(rank, zs, string(member), withScore), nil
	case errNotMaterialized:
		return c.rankColdPath(slot, key, member, reverse, withScore)
	default:
		return nil, err
	}
}

func (c *Context) rankReply(rank int, zs interface {
	Score(string) (float64, bool)
}, member string, withScore bool) interface{} {
	if !withScore {
		return rank
	}
	score, _ := zs.Score(member)
	return []interface{}{rank, formatScore(score)}
}

// rankColdPath scans the score-ordered SubKey2 space looking for member by
// byte-equality, counting its position as the rank (spec.md §4.6.6).
func (c *Context) rankColdPath(slot uint32, key, member []byte, reverse, withScore bool) (interface{}, error) {
	meta, err := c.resolveMetaForRead(slot, key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	if c.Encoding == config.EncodingV1 {
		cmd := "ZRANK"
		if reverse {
			cmd = "ZREVRANK"
		}
		cmdArgs := []interface{}{cmd, string(key), string(member)}
		if withScore {
			cmdArgs = append(cmdArgs, "WITHSCORE")
		}
		return c.StorageRedis.SendCommand(context.Background(), cmdArgs...)
	}

	prefix := keydesign.ZSetSubKey2Prefix(slot, meta.Version, key)

	if !c.Engine.SupportsReverseScan() && reverse {
		zs, err := c.loadFromKVv0(slot, meta, key)
		if err != nil {
			return nil, err
		}
		c.Cache.Put(c.cacheKeyFor(slot, meta, key), zs)
		rank := zs.Rank(string(member))
		if rank < 0 {
			return nil, nil
		}
		rank = zs.Len() - 1 - rank
		return c.rankReply(rank, zs, string(member), withScore), nil
	}

	var (
		idx     = -1
		at      = 0
		atScore float64
	)
	err = c.Engine.ScanByPrefix(prefix, reverse, func(k, _ []byte) bool {
		m := keydesign.DecodeZSetMemberBySubKey2(k, slot, meta.Version, key)
		if bytes.Equal(m, member) {
			idx = at
			atScore = keydesign.DecodeZSetScoreBySubKey2(k, slot, meta.Version, key)
			return false
		}
		at++
		return true
	})
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, nil
	}
	if !withScore {
		return idx, nil
	}
	return []interface{}{idx, formatScore(atScore)}, nil
}
