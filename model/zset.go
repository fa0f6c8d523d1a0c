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

// Package model holds the materialized, in-memory form of each supported
// Redis value once it has been read off the write buffer or local cache:
// the representation a commander actually computes against, as opposed to
// the physical sub-key encoding in keydesign.
package model

import (
	"bytes"
	"sort"

	"github.com/google/btree"
)

// ZSet is the materialized sorted set: a member->score index for O(1)
// membership/score lookups, plus a btree ordered by (score, member) for
// every range query. Mirrors the teacher's sortedSetInternalKey split into
// two physical sub-key spaces (§3.1), just held in memory instead of KV.
type ZSet struct {
	byMember map[string]float64
	byScore  *btree.BTree
}

type zsetItem struct {
	score  float64
	member string
}

func (a *zsetItem) Less(than btree.Item) bool {
	b := than.(*zsetItem)
	if a.score != b.score {
		return a.score < b.score
	}
	return a.member < b.member
}

// NewZSet returns an empty sorted set.
func NewZSet() *ZSet {
	return &ZSet{
		byMember: make(map[string]float64),
		byScore:  btree.New(32),
	}
}

// Duplicate returns a deep copy, satisfying writebuffer.Materialized.
func (z *ZSet) Duplicate() *ZSet {
	out := NewZSet()
	for member, score := range z.byMember {
		out.byMember[member] = score
		out.byScore.ReplaceOrInsert(&zsetItem{score: score, member: member})
	}
	return out
}

// Len returns the number of members (ZCARD).
func (z *ZSet) Len() int { return len(z.byMember) }

// Score returns a member's score and whether it is present (ZSCORE/ZMSCORE).
func (z *ZSet) Score(member string) (float64, bool) {
	score, ok := z.byMember[member]
	return score, ok
}

// Add inserts or updates member's score, returning true if member is new
// (ZADD's added-count semantics).
func (z *ZSet) Add(member string, score float64) bool {
	old, existed := z.byMember[member]
	if existed {
		if old == score {
			return false
		}
		z.byScore.Delete(&zsetItem{score: old, member: member})
	}
	z.byMember[member] = score
	z.byScore.ReplaceOrInsert(&zsetItem{score: score, member: member})
	return !existed
}

// Remove deletes member, returning true if it was present (ZREM).
func (z *ZSet) Remove(member string) bool {
	score, ok := z.byMember[member]
	if !ok {
		return false
	}
	delete(z.byMember, member)
	z.byScore.Delete(&zsetItem{score: score, member: member})
	return true
}

// IncrBy adds delta to member's score (creating it at delta if absent) and
// returns the new score (ZINCRBY).
func (z *ZSet) IncrBy(member string, delta float64) float64 {
	newScore := delta
	if old, ok := z.byMember[member]; ok {
		newScore = old + delta
		z.byScore.Delete(&zsetItem{score: old, member: member})
	}
	z.byMember[member] = newScore
	z.byScore.ReplaceOrInsert(&zsetItem{score: newScore, member: member})
	return newScore
}

// Member pairs a member with its score, returned by every range query below
// in ascending-score order (callers reverse the slice for the REV variants).
type Member struct {
	Name  string
	Score float64
}

// RangeByRank returns members whose 0-based rank (ascending by score, tied
// broken by member) falls in [start, stop] inclusive, after Redis's
// negative-index normalization has already been applied by the caller.
func (z *ZSet) RangeByRank(start, stop int) []Member {
	if z.Len() == 0 || start > stop {
		return nil
	}

	var out []Member
	idx := 0
	z.byScore.Ascend(func(it btree.Item) bool {
		if idx > stop {
			return false
		}
		if idx >= start {
			item := it.(*zsetItem)
			out = append(out, Member{Name: item.member, Score: item.score})
		}
		idx++
		return true
	})
	return out
}

// Rank returns member's 0-based ascending rank, or -1 if absent (ZRANK).
func (z *ZSet) Rank(member string) int {
	score, ok := z.byMember[member]
	if !ok {
		return -1
	}
	rank := -1
	idx := 0
	z.byScore.Ascend(func(it btree.Item) bool {
		item := it.(*zsetItem)
		if item.score == score && item.member == member {
			rank = idx
			return false
		}
		idx++
		return true
	})
	return rank
}

// RangeByScore returns members with minScore <= score <= maxScore (or the
// open variants when minExclusive/maxExclusive are set), in ascending
// order, honoring offset/count as LIMIT would.
func (z *ZSet) RangeByScore(minScore, maxScore float64, minExclusive, maxExclusive bool, offset, count int) []Member {
	var out []Member
	skipped := 0

	z.byScore.AscendGreaterOrEqual(&zsetItem{score: minScore, member: ""}, func(it btree.Item) bool {
		item := it.(*zsetItem)
		if item.score > maxScore || (maxExclusive && item.score == maxScore) {
			return false
		}
		if item.score < minScore {
			return true
		}
		if minExclusive && item.score == minScore {
			return true
		}

		if offset > 0 && skipped < offset {
			skipped++
			return true
		}
		if count >= 0 && len(out) >= count {
			return false
		}
		out = append(out, Member{Name: item.member, Score: item.score})
		return true
	})

	return out
}

// RemoveRangeByScore deletes every member with minScore <= score <= maxScore
// and returns how many were removed (ZREMRANGEBYSCORE).
func (z *ZSet) RemoveRangeByScore(minScore, maxScore float64, minExclusive, maxExclusive bool) int {
	victims := z.RangeByScore(minScore, maxScore, minExclusive, maxExclusive, 0, -1)
	for _, v := range victims {
		z.Remove(v.Name)
	}
	return len(victims)
}

// RemoveRangeByRank deletes members whose ascending rank falls in
// [start, stop] and returns how many were removed (ZREMRANGEBYRANK).
func (z *ZSet) RemoveRangeByRank(start, stop int) int {
	victims := z.RangeByRank(start, stop)
	for _, v := range victims {
		z.Remove(v.Name)
	}
	return len(victims)
}

// RemoveRangeByLex deletes every member whose name falls in [min, max] per
// keydesign.CheckLex and returns the removed members sorted by name
// (ZREMRANGEBYLEX), matching Redis's documented precondition
// that lex ranges only make sense when every member shares one score.
func (z *ZSet) RemoveRangeByLex(checkLex func(member []byte) bool) []Member {
	all := z.AllAscending()
	SortMembersByName(all)

	var victims []Member
	for _, m := range all {
		if checkLex([]byte(m.Name)) {
			victims = append(victims, m)
		}
	}
	for _, v := range victims {
		z.Remove(v.Name)
	}
	return victims
}

// AllAscending returns every member in ascending (score, member) order,
// the base sequence that lex-range commands filter by member bytes.
func (z *ZSet) AllAscending() []Member {
	out := make([]Member, 0, z.Len())
	z.byScore.Ascend(func(it btree.Item) bool {
		item := it.(*zsetItem)
		out = append(out, Member{Name: item.member, Score: item.score})
		return true
	})
	return out
}

// SortMembersByName sorts a slice of Member lexicographically by Name; used
// by the lex-range family, which requires all members to share one score
// (Redis's documented precondition for ZRANGEBYLEX to be meaningful).
func SortMembersByName(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare([]byte(members[i].Name), []byte(members[j].Name)) < 0
	})
}
