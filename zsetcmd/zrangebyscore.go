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
	"math"
	"strconv"
	"strings"

	"github.com/kvredis/proxy/config"
	"github.com/kvredis/proxy/keydesign"
	"github.com/kvredis/proxy/model"
	"github.com/kvredis/proxy/proxyerrors"
)

// scoreBound is a parsed ZRANGEBYSCORE min/max argument: a leading '(' marks
// exclusive, "-inf"/"+inf" map to +/-Inf, anything else parses as a float.
type scoreBound struct {
	value     float64
	exclusive bool
}

func parseScoreBound(raw []byte) (scoreBound, error) {
	s := string(raw)
	exclusive := false
	if len(s) > 0 && s[0] == '(' {
		exclusive = true
		s = s[1:]
	}

	switch strings.ToLower(s) {
	case "-inf":
		return scoreBound{value: math.Inf(-1), exclusive: exclusive}, nil
	case "+inf", "inf":
		return scoreBound{value: math.Inf(1), exclusive: exclusive}, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return scoreBound{}, proxyerrors.ErrSyntax
	}
	return scoreBound{value: v, exclusive: exclusive}, nil
}

// ZRangeByScore implements ZRANGEBYSCORE key min max [WITHSCORES]
// [LIMIT offset count].
func (c *Context) ZRangeByScore(slot uint32, args [][]byte) (interface{}, error) {
	return c.rangeByScore(slot, args, false)
}

// ZRevRangeByScore implements ZREVRANGEBYSCORE key max min [WITHSCORES]
// [LIMIT offset count]: swapped bound order, descending result.
func (c *Context) ZRevRangeByScore(slot uint32, args [][]byte) (interface{}, error) {
	return c.rangeByScore(slot, args, true)
}

func (c *Context) rangeByScore(slot uint32, args [][]byte, reverse bool) (interface{}, error) {
	if len(args) < 3 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}
	key := args[0]
	minRaw, maxRaw := args[1], args[2]
	if reverse {
		minRaw, maxRaw = args[2], args[1]
	}

	min, err := parseScoreBound(minRaw)
	if err != nil {
		return nil, err
	}
	max, err := parseScoreBound(maxRaw)
	if err != nil {
		return nil, err
	}

	withScores := false
	offset, count := 0, -1
	rest := args[3:]
	for len(rest) > 0 {
		switch {
		case strings.EqualFold(string(rest[0]), "WITHSCORES"):
			withScores = true
			rest = rest[1:]
		case strings.EqualFold(string(rest[0]), "LIMIT") && len(rest) >= 3:
			offset, err = parseIntStrict(string(rest[1]))
			if err != nil {
				return nil, err
			}
			count, err = parseIntStrict(string(rest[2]))
			if err != nil {
				return nil, err
			}
			rest = rest[3:]
		default:
			return nil, proxyerrors.ErrSyntax
		}
	}

	if min.value > max.value {
		return []interface{}{}, nil
	}

	zs, exists, err := c.loadForRead(slot, key, false)
	switch err {
	case nil:
		if !exists {
			return []interface{}{}, nil
		}
		members := zs.RangeByScore(min.value, max.value, min.exclusive, max.exclusive, 0, -1)
		return c.reverseIfNeeded(members, reverse, offset, count, withScores), nil
	case errNotMaterialized:
		return c.rangeByScoreColdPath(slot, key, min, max, offset, count, reverse, withScores)
	default:
		return nil, err
	}
}

// reverseIfNeeded puts members in reply order (descending for the REV
// variant) and then applies LIMIT offset/count to that order.
func (c *Context) reverseIfNeeded(members []model.Member, reverse bool, offset, count int, withScores bool) interface{} {
	if reverse {
		for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
			members[i], members[j] = members[j], members[i]
		}
	}
	return membersToReply(applyLimit(members, offset, count), withScores)
}

// rangeByScoreColdPath scans the SubKey2 (score-ordered) space for v0, or
// forwards to storage Redis for v1.
func (c *Context) rangeByScoreColdPath(slot uint32, key []byte, min, max scoreBound, offset, count int, reverse, withScores bool) (interface{}, error) {
	meta, err := c.resolveMetaForRead(slot, key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return []interface{}{}, nil
	}

	if c.Encoding == config.EncodingV1 {
		cmd := "ZRANGEBYSCORE"
		minArg, maxArg := scoreBoundToRESP(min), scoreBoundToRESP(max)
		if reverse {
			cmd = "ZREVRANGEBYSCORE"
			minArg, maxArg = maxArg, minArg
		}
		cmdArgs := []interface{}{cmd, string(key), minArg, maxArg}
		if withScores {
			cmdArgs = append(cmdArgs, "WITHSCORES")
		}
		if count >= 0 {
			cmdArgs = append(cmdArgs, "LIMIT", offset, count)
		}
		return c.StorageRedis.SendCommand(context.Background(), cmdArgs...)
	}

	zs, err := c.loadFromKVv0(slot, meta, key)
	if err != nil {
		return nil, err
	}
	c.Cache.Put(c.cacheKeyFor(slot, meta, key), zs)

	members := zs.RangeByScore(min.value, max.value, min.exclusive, max.exclusive, 0, -1)
	return c.reverseIfNeeded(members, reverse, offset, count, withScores), nil
}

func scoreBoundToRESP(b scoreBound) string {
	s := formatScoreBoundValue(b.value)
	if b.exclusive {
		return "(" + s
	}
	return s
}

func formatScoreBoundValue(v float64) string {
	if math.IsInf(v, 1) {
		return "+inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	return string(formatScore(v))
}
