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

package kv

import (
	"bytes"
	"errors"

	"github.com/kvredis/proxy/storage"
)

// LSMEngine adapts the bundled append-only log engine (storage.SlotStore) to
// the Engine interface. It is the default, always-available KV tier: no
// external services required.
type LSMEngine struct {
	db *storage.SlotStore
}

// OpenLSMEngine opens or creates the on-disk log at options.DirectoryPath.
func OpenLSMEngine(options storage.Options) (*LSMEngine, error) {
	db, err := storage.Open(options)
	if err != nil {
		return nil, err
	}
	return &LSMEngine{db: db}, nil
}

func (e *LSMEngine) Get(key []byte) ([]byte, error) {
	value, err := e.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (e *LSMEngine) Put(key, value []byte) error {
	return e.db.Put(key, value)
}

func (e *LSMEngine) Delete(key []byte) error {
	err := e.db.Delete(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (e *LSMEngine) Close() error {
	return e.db.Close()
}

// SupportsReverseScan is always true: the underlying iterator takes a
// Reverse option directly.
func (e *LSMEngine) SupportsReverseScan() bool { return true }

// DeleteSlot removes every physical key under slotPrefix from the
// underlying SlotStore in one call; see SlotStore.DeleteSlot.
func (e *LSMEngine) DeleteSlot(slotPrefix []byte) (int, error) {
	return e.db.DeleteSlot(slotPrefix)
}

func (e *LSMEngine) NewBatch() Batch {
	wb := e.db.NewWriteBatch(storage.DefaultWriteBatchOptions)
	return &lsmBatch{wb: wb}
}

type lsmBatch struct {
	wb *storage.WriteBatch
}

func (b *lsmBatch) Put(key, value []byte) error    { return b.wb.Put(key, value) }
func (b *lsmBatch) Delete(key []byte) error         { return b.wb.Delete(key) }
func (b *lsmBatch) Commit() error                   { return b.wb.Commit() }

func (e *LSMEngine) ScanByPrefix(prefix []byte, reverse bool, visit VisitFunc) error {
	it := e.db.NewIterator(storage.IteratorOptions{Prefix: prefix, Reverse: reverse})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		value, err := it.Value()
		if err != nil {
			return err
		}
		if !visit(it.Key(), value) {
			break
		}
	}
	return nil
}

// ScanByStartEnd visits keys in [start, end) by seeking into a full index
// iterator and stopping once a visited key falls outside the bound; the
// teacher's Iterator only supports prefix bounds, so the end check is done
// here rather than by skipToNext.
func (e *LSMEngine) ScanByStartEnd(start, end []byte, reverse bool, visit VisitFunc) error {
	it := e.db.NewIterator(storage.IteratorOptions{Reverse: reverse})
	defer it.Close()

	if reverse {
		if end != nil {
			it.Seek(end)
			// Seek lands on the first key <= end; end itself is exclusive.
			if it.Valid() && bytes.Equal(it.Key(), end) {
				it.Next()
			}
		} else {
			it.Rewind()
		}

		for ; it.Valid(); it.Next() {
			key := it.Key()
			if start != nil && bytes.Compare(key, start) < 0 {
				break
			}
			value, err := it.Value()
			if err != nil {
				return err
			}
			if !visit(key, value) {
				break
			}
		}
		return nil
	}

	if start != nil {
		it.Seek(start)
	} else {
		it.Rewind()
	}

	for ; it.Valid(); it.Next() {
		key := it.Key()
		if end != nil && bytes.Compare(key, end) >= 0 {
			break
		}
		value, err := it.Value()
		if err != nil {
			return err
		}
		if !visit(key, value) {
			break
		}
	}
	return nil
}
