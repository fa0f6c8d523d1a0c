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

// ZRangeByLex implements ZRANGEBYLEX key min max [LIMIT offset count], per
// spec.md §4.6.1.
func (c *Context) ZRangeByLex(slot uint32, args [][]byte) (interface{}, error) {
	return c.rangeByLex(slot, args, false)
}

// ZRevRangeByLex implements ZREVRANGEBYLEX key max min [LIMIT offset
// count], per spec.md §4.6.4: symmetric to ZRANGEBYLEX with swapped
// min/max argument positions and the result order reversed.
func (c *Context) ZRevRangeByLex(slot uint32, args [][]byte) (interface{}, error) {
	return c.rangeByLex(slot, args, true)
}

func (c *Context) rangeByLex(slot uint32, args [][]byte, reverse bool) (interface{}, error) {
	if len(args) != 3 && len(args) != 6 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}

	key := args[0]
	// ZREVRANGEBYLEX takes (key, max, min); ZRANGEBYLEX takes (key, min, max).
	minRaw, maxRaw := args[1], args[2]
	if reverse {
		minRaw, maxRaw = args[2], args[1]
	}

	min, err := keydesign.ParseLexBound(minRaw)
	if err != nil {
		return nil, err
	}
	max, err := keydesign.ParseLexBound(maxRaw)
	if err != nil {
		return nil, err
	}

	offset, count := 0, -1
	if len(args) == 6 {
		if !strings.EqualFold(string(args[3]), "LIMIT") {
			return nil, proxyerrors.ErrSyntax
		}
		offset, err = parseIntStrict(string(args[3+1]))
		if err != nil {
			return nil, err
		}
		count, err = parseIntStrict(string(args[3+2]))
		if err != nil {
			return nil, err
		}
	}

	if keydesign.ImpossibleInterval(min, max) {
		return []interface{}{}, nil
	}

	zs, exists, err := c.loadForRead(slot, key, false)
	switch err {
	case nil:
		if !exists {
			return []interface{}{}, nil
		}
		return c.filterLex(zs.AllAscending(), min, max, offset, count, reverse), nil
	case errNotMaterialized:
		return c.rangeByLexColdPath(slot, key, min, max, offset, count, reverse)
	default:
		return nil, err
	}
}

func (c *Context) filterLex(all []model.Member, min, max keydesign.LexBound, offset, count int, reverse bool) interface{} {
	model.SortMembersByName(all)

	filtered := make([]model.Member, 0, len(all))
	for _, m := range all {
		if keydesign.CheckLex([]byte(m.Name), min, max) {
			filtered = append(filtered, m)
		}
	}

	if reverse {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}

	filtered = applyLimit(filtered, offset, count)
	return membersToReply(filtered, false)
}

func applyLimit(members []model.Member, offset, count int) []model.Member {
	if offset > 0 {
		if offset >= len(members) {
			return nil
		}
		members = members[offset:]
	}
	if count >= 0 && count < len(members) {
		members = members[:count]
	}
	return members
}

// rangeByLexColdPath implements the KV v0/v1 scan algorithm described in
// spec.md §4.6.1: a bounded prefix scan over the SubKey1 (member->score)
// space in a single pass, filtering the exclusive boundary via check_lex on
// each candidate.
func (c *Context) rangeByLexColdPath(slot uint32, key []byte, min, max keydesign.LexBound, offset, count int, reverse bool) (interface{}, error) {
	meta, err := c.resolveMetaForRead(slot, key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return []interface{}{}, nil
	}

	if c.Encoding == config.EncodingV1 {
		return c.rangeByLexV1(key, min, max, offset, count, reverse)
	}

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

	var collected []model.Member
	scanErr := c.Engine.ScanByStartEnd(startKey, endKey, reverse, func(k, v []byte) bool {
		member := keydesign.DecodeZSetMemberBySubKey1(k, slot, meta.Version, key)
		if !keydesign.CheckLex(member, min, max) {
			return true
		}
		collected = append(collected, model.Member{Name: string(member), Score: keydesign.DecodeScore(v)})
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}

	collected = applyLimit(collected, offset, count)
	return membersToReply(collected, false), nil
}

func (c *Context) rangeByLexV1(key []byte, min, max keydesign.LexBound, offset, count int, reverse bool) (interface{}, error) {
	cmd := "ZRANGEBYLEX"
	if reverse {
		cmd = "ZREVRANGEBYLEX"
	}

	minArg, maxArg := lexBoundToRESP(min), lexBoundToRESP(max)
	cmdArgs := []interface{}{cmd, string(key), minArg, maxArg}
	if count >= 0 {
		cmdArgs = append(cmdArgs, "LIMIT", offset, count)
	}
	if reverse {
		cmdArgs[2], cmdArgs[3] = maxArg, minArg
	}

	return c.StorageRedis.SendCommand(context.Background(), cmdArgs...)
}

func lexBoundToRESP(b keydesign.LexBound) string {
	switch {
	case b.IsMin():
		return "-"
	case b.IsMax():
		return "+"
	case b.IsExclusive():
		return "(" + string(b.Value)
	default:
		return "[" + string(b.Value)
	}
}
