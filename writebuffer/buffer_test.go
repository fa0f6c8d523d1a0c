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

package writebuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kvredis/proxy/model"
)

func TestBufferPutGetRoundTrips(t *testing.T) {
	b := New[*model.ZSet]()

	zs := model.NewZSet()
	zs.Add("a", 1)
	b.Put([]byte("key"), zs)

	got, ok := b.Get([]byte("key"))
	assert.True(t, ok)
	assert.Equal(t, 1, got.Len())
}

func TestBufferGetReturnsIndependentCopy(t *testing.T) {
	b := New[*model.ZSet]()

	zs := model.NewZSet()
	zs.Add("a", 1)
	b.Put([]byte("key"), zs)

	got, _ := b.Get([]byte("key"))
	got.Add("b", 2)

	again, _ := b.Get([]byte("key"))
	assert.Equal(t, 1, again.Len(), "mutating a Get result must not affect the buffered entry")
}

func TestBufferEvictDropsEntry(t *testing.T) {
	b := New[*model.ZSet]()

	zs := model.NewZSet()
	zs.Add("a", 1)
	b.Put([]byte("key"), zs)

	b.Evict([]byte("key"))

	_, ok := b.Get([]byte("key"))
	assert.False(t, ok, "an evicted key must not still be served from the write buffer")
}

func TestBufferCompleteUnblocksWait(t *testing.T) {
	b := New[*model.ZSet]()
	result := b.Put([]byte("key"), model.NewZSet())

	done := make(chan error, 1)
	go func() { done <- result.Wait() }()

	Complete(result, nil)
	assert.NoError(t, <-done)
}
