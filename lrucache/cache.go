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

// Package lrucache is the proxy's local, per-process cache tier sitting
// between the write buffer and the KV engine. It keeps the read-mostly
// working set materialized in memory so that most commands never touch the
// KV tier at all.
package lrucache

import (
	"container/list"
	"sync"
)

type entry[T any] struct {
	cacheKey string
	obj      T
}

// Cache is a fixed-capacity, least-recently-used cache of materialized
// values, keyed by the physical cache key (keydesign.CacheKey). One Cache
// instance is kept per data type, matching the teacher's type-keyed
// metadata lookups one level up.
type Cache[T any] struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[string]*list.Element
}

// New returns a cache holding at most capacity entries.
func New[T any](capacity int) *Cache[T] {
	return &Cache[T]{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the cached value for cacheKey and marks it most-recently-used.
func (c *Cache[T]) Get(cacheKey []byte) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[string(cacheKey)]
	if !ok {
		var zero T
		return zero, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry[T]).obj, true
}

// Put inserts or updates cacheKey's value, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache[T]) Put(cacheKey []byte, obj T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := string(cacheKey)
	if el, ok := c.index[key]; ok {
		el.Value.(*entry[T]).obj = obj
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry[T]{cacheKey: key, obj: obj})
	c.index[key] = el

	if c.capacity > 0 && c.ll.Len() > c.capacity {
		c.evictOldest()
	}
}

// Remove drops cacheKey from the cache, if present.
func (c *Cache[T]) Remove(cacheKey []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := string(cacheKey)
	if el, ok := c.index[key]; ok {
		c.ll.Remove(el)
		delete(c.index, key)
	}
}

// Len reports how many entries are currently cached.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache[T]) evictOldest() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	c.ll.Remove(oldest)
	delete(c.index, oldest.Value.(*entry[T]).cacheKey)
}
