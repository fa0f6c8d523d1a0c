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

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZSetAddAndCard(t *testing.T) {
	zs := NewZSet()
	assert.True(t, zs.Add("a", 1))
	assert.True(t, zs.Add("b", 2))
	assert.False(t, zs.Add("a", 5), "re-adding an existing member is not a new insert")
	assert.Equal(t, 2, zs.Len())

	score, ok := zs.Score("a")
	require.True(t, ok)
	assert.Equal(t, float64(5), score)
}

func TestZSetCardMatchesRangeLength(t *testing.T) {
	zs := NewZSet()
	for i, m := range []string{"a", "b", "c", "d", "e"} {
		zs.Add(m, float64(i))
	}
	assert.Equal(t, zs.Len(), len(zs.RangeByRank(0, -1+zs.Len())))
	assert.Equal(t, zs.Len(), len(zs.AllAscending()))
}

func TestZSetRangeByRankOrder(t *testing.T) {
	zs := NewZSet()
	zs.Add("c", 3)
	zs.Add("a", 1)
	zs.Add("b", 2)

	members := zs.RangeByRank(0, 2)
	require.Len(t, members, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{members[0].Name, members[1].Name, members[2].Name})
}

func TestZSetRank(t *testing.T) {
	zs := NewZSet()
	zs.Add("a", 1)
	zs.Add("b", 2)
	zs.Add("c", 3)

	assert.Equal(t, 0, zs.Rank("a"))
	assert.Equal(t, 2, zs.Rank("c"))
	assert.Equal(t, -1, zs.Rank("missing"))
}

func TestZSetRangeByScoreExclusiveBounds(t *testing.T) {
	zs := NewZSet()
	zs.Add("a", 1)
	zs.Add("b", 2)
	zs.Add("c", 3)

	inclusive := zs.RangeByScore(1, 3, false, false, 0, -1)
	assert.Len(t, inclusive, 3)

	exclusive := zs.RangeByScore(1, 3, true, true, 0, -1)
	require.Len(t, exclusive, 1)
	assert.Equal(t, "b", exclusive[0].Name)
}

func TestZSetRemoveRangeByScore(t *testing.T) {
	zs := NewZSet()
	zs.Add("a", 1)
	zs.Add("b", 2)
	zs.Add("c", 3)

	removed := zs.RemoveRangeByScore(1, 2, false, false)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, zs.Len())

	_, ok := zs.Score("c")
	assert.True(t, ok)
}

func TestZSetRemoveRangeByRank(t *testing.T) {
	zs := NewZSet()
	zs.Add("a", 1)
	zs.Add("b", 2)
	zs.Add("c", 3)

	removed := zs.RemoveRangeByRank(0, 1)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, zs.Len())
	_, ok := zs.Score("c")
	assert.True(t, ok)
}

func TestZSetRemoveRangeByLex(t *testing.T) {
	zs := NewZSet()
	for _, m := range []string{"a", "b", "c", "d"} {
		zs.Add(m, 0)
	}

	removed := zs.RemoveRangeByLex(func(member []byte) bool {
		return string(member) >= "b" && string(member) <= "c"
	})
	require.Len(t, removed, 2)
	assert.Equal(t, 2, zs.Len())
	_, ok := zs.Score("b")
	assert.False(t, ok)
}

func TestZSetIncrBy(t *testing.T) {
	zs := NewZSet()
	assert.Equal(t, float64(5), zs.IncrBy("a", 5))
	assert.Equal(t, float64(8), zs.IncrBy("a", 3))
}

func TestZSetDuplicateIsIndependent(t *testing.T) {
	zs := NewZSet()
	zs.Add("a", 1)

	dup := zs.Duplicate()
	dup.Add("b", 2)

	assert.Equal(t, 1, zs.Len())
	assert.Equal(t, 2, dup.Len())
}
