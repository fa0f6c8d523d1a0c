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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvredis/proxy/keydesign"
	"github.com/kvredis/proxy/storage"
)

func openTestEngine(t *testing.T) *LSMEngine {
	t.Helper()
	dir, err := os.MkdirTemp("", "lsmengine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	options := storage.DefaultOptions
	options.DirectoryPath = dir
	engine, err := OpenLSMEngine(options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestLSMEngineDeleteSlotIsolatesOtherSlots(t *testing.T) {
	engine := openTestEngine(t)

	slot0Prefix := keydesign.SlotPrefix(0)

	key0 := keydesign.CacheKey(0, 1, []byte("k"))
	key1 := keydesign.CacheKey(1, 1, []byte("k"))

	require.NoError(t, engine.Put(key0, []byte("v0")))
	require.NoError(t, engine.Put(key1, []byte("v1")))

	removed, err := engine.DeleteSlot(slot0Prefix)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = engine.Get(key0)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	value, err := engine.Get(key1)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)
}
