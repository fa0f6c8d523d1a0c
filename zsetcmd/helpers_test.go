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
	"sort"
	"sync"

	"github.com/kvredis/proxy/config"
	"github.com/kvredis/proxy/kv"
	"github.com/kvredis/proxy/lrucache"
	"github.com/kvredis/proxy/metadata"
	"github.com/kvredis/proxy/model"
	"github.com/kvredis/proxy/writebuffer"
)

// memEngine is a minimal in-memory kv.Engine backed by a sorted map, used
// only to exercise the tiered command path in tests without the real LSM
// engine's on-disk state.
type memEngine struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemEngine() *memEngine {
	return &memEngine{data: make(map[string][]byte)}
}

func (e *memEngine) Get(key []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.data[string(key)]
	if !ok {
		return nil, kv.ErrKeyNotFound
	}
	return v, nil
}

func (e *memEngine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (e *memEngine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.data, string(key))
	return nil
}

type memBatch struct {
	e   *memEngine
	ops []func()
}

func (b *memBatch) Put(key, value []byte) error {
	k, v := append([]byte(nil), key...), append([]byte(nil), value...)
	b.ops = append(b.ops, func() { b.e.data[string(k)] = v })
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	k := append([]byte(nil), key...)
	b.ops = append(b.ops, func() { delete(b.e.data, string(k)) })
	return nil
}

func (b *memBatch) Commit() error {
	b.e.mu.Lock()
	defer b.e.mu.Unlock()
	for _, op := range b.ops {
		op()
	}
	return nil
}

func (e *memEngine) NewBatch() kv.Batch {
	return &memBatch{e: e}
}

func (e *memEngine) sortedKeys() []string {
	keys := make([]string, 0, len(e.data))
	for k := range e.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *memEngine) ScanByPrefix(prefix []byte, reverse bool, visit kv.VisitFunc) error {
	e.mu.Lock()
	keys := e.sortedKeys()
	e.mu.Unlock()

	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	for _, k := range keys {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		e.mu.Lock()
		v := e.data[k]
		e.mu.Unlock()
		if !visit([]byte(k), v) {
			break
		}
	}
	return nil
}

func (e *memEngine) ScanByStartEnd(start, end []byte, reverse bool, visit kv.VisitFunc) error {
	e.mu.Lock()
	keys := e.sortedKeys()
	e.mu.Unlock()

	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	for _, k := range keys {
		kb := []byte(k)
		if bytes.Compare(kb, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(kb, end) >= 0 {
			continue
		}
		e.mu.Lock()
		v := e.data[k]
		e.mu.Unlock()
		if !visit(kb, v) {
			break
		}
	}
	return nil
}

func (e *memEngine) SupportsReverseScan() bool { return true }

func (e *memEngine) DeleteSlot(slotPrefix []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var n int
	for k := range e.data {
		if bytes.HasPrefix([]byte(k), slotPrefix) {
			delete(e.data, k)
			n++
		}
	}
	return n, nil
}

func (e *memEngine) Close() error { return nil }

// noReverseScanEngine wraps a memEngine to report SupportsReverseScan as
// false, exercising the cold-path fallback that materializes the whole
// object instead of scanning backward.
type noReverseScanEngine struct {
	*memEngine
}

func (e *noReverseScanEngine) SupportsReverseScan() bool { return false }

// newTestContext wires a Context over a fresh memEngine, with the hot-key
// threshold set to 1 so every key materializes into the LRU cache
// immediately, matching how a command would behave against a long-lived
// key in production.
func newTestContext() *Context {
	engine := newMemEngine()
	meta := metadata.NewKVStore(engine, 16)
	return New(
		meta,
		engine,
		writebuffer.New[*model.ZSet](),
		lrucache.New[*model.ZSet](16),
		lrucache.NewHotKeyDetector(0, 1),
		nil,
		config.EncodingV0,
	)
}
