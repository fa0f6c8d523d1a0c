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

package metadata

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/kvredis/proxy/kv"
)

// metaNamespace tags metadata records so they can never collide with a
// sub-key written under the same slot, even though both live in the same
// flat kv.Engine keyspace.
const metaNamespace = 'M'

func metaKey(slot uint32, logicalKey []byte) []byte {
	buf := make([]byte, 1+4+len(logicalKey))
	buf[0] = metaNamespace
	binary.BigEndian.PutUint32(buf[1:5], slot)
	copy(buf[5:], logicalKey)
	return buf
}

// Store answers "what type/version/size does this logical key currently
// have" for every commander, synthesizing a fresh KeyMeta when the key is
// absent or its TTL has lapsed.
type Store interface {
	// Get returns the live metadata for key, or nil if the key does not
	// currently exist (absent, or present but expired).
	Get(ctx context.Context, slot uint32, key []byte) (*KeyMeta, error)

	// RunToCompletion returns metadata for key, synthesizing a fresh
	// KeyMeta of dataType if the key does not currently exist. Returns
	// ErrWrongType if the key exists with a different type.
	RunToCompletion(ctx context.Context, slot uint32, key []byte, dataType DataType) (*KeyMeta, error)

	Put(ctx context.Context, slot uint32, key []byte, meta *KeyMeta) error
	Delete(ctx context.Context, slot uint32, key []byte) error
}

// KVStore is the default Store, backed directly by a kv.Engine. It keeps a
// small in-process cache of recently resolved metadata so that a burst of
// commands against the same hot key does not each pay a KV round trip,
// mirroring the teacher's direct findMetadata lookup but split into a
// hot/cold path per spec.
type KVStore struct {
	engine kv.Engine

	mu    sync.Mutex
	cache map[string]*KeyMeta
	cap   int
}

// NewKVStore wraps engine. cacheCapacity bounds the number of distinct
// logical keys whose metadata is held in memory; 0 disables the cache.
func NewKVStore(engine kv.Engine, cacheCapacity int) *KVStore {
	return &KVStore{
		engine: engine,
		cache:  make(map[string]*KeyMeta, cacheCapacity),
		cap:    cacheCapacity,
	}
}

func (s *KVStore) Get(_ context.Context, slot uint32, key []byte) (*KeyMeta, error) {
	meta, err := s.load(slot, key)
	if err != nil {
		return nil, err
	}
	if meta == nil || !meta.Exists(nowUnixNano()) {
		return nil, nil
	}
	return meta, nil
}

func (s *KVStore) RunToCompletion(_ context.Context, slot uint32, key []byte, dataType DataType) (*KeyMeta, error) {
	meta, err := s.load(slot, key)
	if err != nil {
		return nil, err
	}

	if meta != nil && meta.Exists(nowUnixNano()) {
		if meta.Type != dataType {
			return nil, ErrWrongType
		}
		return meta, nil
	}

	fresh := &KeyMeta{
		Type:    dataType,
		Expire:  0,
		Version: nowUnixNano(),
		Size:    0,
	}
	return fresh, nil
}

func (s *KVStore) Put(_ context.Context, slot uint32, key []byte, meta *KeyMeta) error {
	if err := s.engine.Put(metaKey(slot, key), meta.Encode()); err != nil {
		return err
	}
	s.store(slot, key, meta)
	return nil
}

func (s *KVStore) Delete(_ context.Context, slot uint32, key []byte) error {
	if err := s.engine.Delete(metaKey(slot, key)); err != nil {
		return err
	}
	s.evict(slot, key)
	return nil
}

func (s *KVStore) load(slot uint32, key []byte) (*KeyMeta, error) {
	if cached, ok := s.fromCache(slot, key); ok {
		return cached, nil
	}

	raw, err := s.engine.Get(metaKey(slot, key))
	if err == kv.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	meta := Decode(raw)
	s.store(slot, key, meta)
	return meta, nil
}

func (s *KVStore) fromCache(slot uint32, key []byte) (*KeyMeta, bool) {
	if s.cap == 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.cache[cacheMapKey(slot, key)]
	return meta, ok
}

func (s *KVStore) store(slot uint32, key []byte, meta *KeyMeta) {
	if s.cap == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := cacheMapKey(slot, key)
	if _, exists := s.cache[k]; !exists && len(s.cache) >= s.cap {
		// Simplest eviction that keeps this path allocation-free on the
		// hot path: drop an arbitrary entry rather than track LRU order
		// twice (lrucache already does that for the data tiers).
		for victim := range s.cache {
			delete(s.cache, victim)
			break
		}
	}
	s.cache[k] = meta
}

func (s *KVStore) evict(slot uint32, key []byte) {
	if s.cap == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, cacheMapKey(slot, key))
}

func cacheMapKey(slot uint32, key []byte) string {
	return string(metaKey(slot, key))
}

func nowUnixNano() int64 {
	return time.Now().UnixNano()
}
