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

// Package zsetcmd implements the sorted-set commander family: ZADD and its
// sixteen siblings, every one following the write-buffer → LRU → KV tiered
// pattern described for the metadata/cache/engine stack in this module.
package zsetcmd

import (
	"context"
	"time"

	"github.com/kvredis/proxy/config"
	"github.com/kvredis/proxy/keydesign"
	"github.com/kvredis/proxy/kv"
	"github.com/kvredis/proxy/lrucache"
	"github.com/kvredis/proxy/metadata"
	"github.com/kvredis/proxy/metrics"
	"github.com/kvredis/proxy/model"
	"github.com/kvredis/proxy/storageredis"
	"github.com/kvredis/proxy/writebuffer"
)

const hotKeyClass = "zset"

// Context bundles every collaborator a zset commander needs. It is passed
// explicitly rather than embedded, per the "polymorphism over commanders,
// not inheritance" design this package follows.
type Context struct {
	Meta         metadata.Store
	Engine       kv.Engine
	WriteBuffer  *writebuffer.Buffer[*model.ZSet]
	Cache        *lrucache.Cache[*model.ZSet]
	HotKeys      *lrucache.HotKeyDetector
	StorageRedis storageredis.Client
	Encoding     config.EncodingVersion
	ScanBatchSize int
	Metrics      metrics.Collector
}

// New returns a Context wired to the given collaborators, with ScanBatchSize
// defaulted to 256 if unset.
func New(meta metadata.Store, engine kv.Engine, wb *writebuffer.Buffer[*model.ZSet], cache *lrucache.Cache[*model.ZSet], hotKeys *lrucache.HotKeyDetector, storageRedis storageredis.Client, encoding config.EncodingVersion) *Context {
	return &Context{
		Meta:          meta,
		Engine:        engine,
		WriteBuffer:   wb,
		Cache:         cache,
		HotKeys:       hotKeys,
		StorageRedis:  storageRedis,
		Encoding:      encoding,
		ScanBatchSize: 256,
		Metrics:       metrics.Noop{},
	}
}

// resolveMeta fetches the key's metadata for a write path, synthesizing a
// fresh zset KeyMeta if the key is absent, and rejecting a type mismatch.
func (c *Context) resolveMeta(slot uint32, key []byte) (*metadata.KeyMeta, error) {
	return c.Meta.RunToCompletion(context.Background(), slot, key, metadata.TypeZSet)
}

// resolveMetaForRead fetches metadata for a read path: a missing key is not
// an error, it just means "no such key" to the caller.
func (c *Context) resolveMetaForRead(slot uint32, key []byte) (*metadata.KeyMeta, error) {
	meta, err := c.Meta.Get(context.Background(), slot, key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}
	if meta.Type != metadata.TypeZSet {
		return nil, metadata.ErrWrongType
	}
	return meta, nil
}

func (c *Context) cacheKeyFor(slot uint32, meta *metadata.KeyMeta, key []byte) []byte {
	return keydesign.CacheKey(slot, meta.Version, key)
}

// loadFromKVv0 materializes the whole zset by scanning the member->score
// sub-key space (SubKey1).
func (c *Context) loadFromKVv0(slot uint32, meta *metadata.KeyMeta, key []byte) (*model.ZSet, error) {
	prefix := keydesign.ZSetSubKey1Prefix(slot, meta.Version, key)
	zs := model.NewZSet()

	err := c.Engine.ScanByPrefix(prefix, false, func(k, v []byte) bool {
		member := keydesign.DecodeZSetMemberBySubKey1(k, slot, meta.Version, key)
		zs.Add(string(member), keydesign.DecodeScore(v))
		return true
	})
	if err != nil {
		return nil, err
	}
	return zs, nil
}

// loadForRead returns the materialized zset for key from the tiered read
// path (write buffer, then LRU, then — only if the key is hot, or the
// caller forces it — the KV/storage-Redis tier), along with whether the key
// exists at all.
func (c *Context) loadForRead(slot uint32, key []byte, force bool) (*model.ZSet, bool, error) {
	meta, err := c.resolveMetaForRead(slot, key)
	if err != nil {
		return nil, false, err
	}
	if meta == nil {
		return nil, false, nil
	}

	ck := c.cacheKeyFor(slot, meta, key)

	if zs, ok := c.WriteBuffer.Get(ck); ok {
		c.Metrics.CacheHit("write_buffer")
		return zs, true, nil
	}

	if zs, ok := c.Cache.Get(ck); ok {
		c.Metrics.CacheHit("lru")
		return zs, true, nil
	}
	c.Metrics.CacheMiss("lru")

	if !force && !c.HotKeys.Touch(key, hotKeyClass, time.Now()) {
		return nil, true, errNotMaterialized
	}
	c.Metrics.HotKeyDetected(hotKeyClass)

	zs, err := c.loadZSet(slot, meta, key)
	if err != nil {
		return nil, false, err
	}
	c.Cache.Put(ck, zs)
	return zs, true, nil
}

// loadForWrite is loadForRead's write-path counterpart: it always
// materializes on miss (a write commander cannot answer without knowing the
// current state). It does not put the result into the write buffer or the
// cache; commit does that once the caller has mutated it.
func (c *Context) loadForWrite(slot uint32, key []byte) (*model.ZSet, *metadata.KeyMeta, error) {
	meta, err := c.resolveMeta(slot, key)
	if err != nil {
		return nil, nil, err
	}

	ck := c.cacheKeyFor(slot, meta, key)

	if zs, ok := c.WriteBuffer.Get(ck); ok {
		return zs, meta, nil
	}

	if zs, ok := c.Cache.Get(ck); ok {
		return zs, meta, nil
	}
	c.HotKeys.Touch(key, hotKeyClass, time.Now())

	zs, err := c.loadZSet(slot, meta, key)
	if err != nil {
		return nil, nil, err
	}
	return zs, meta, nil
}

func (c *Context) loadZSet(slot uint32, meta *metadata.KeyMeta, key []byte) (*model.ZSet, error) {
	if c.Encoding == config.EncodingV1 {
		return c.loadFromStorageRedis(key)
	}
	return c.loadFromKVv0(slot, meta, key)
}

// commit mirrors zs into the LRU cache and the write buffer. It writes
// nothing to the KV engine or storage Redis: v0 callers have already
// issued their point writes to the engine directly and v1 callers have
// already forwarded to storage Redis; commit only handles the cache
// mirroring and the write-buffer bookkeeping common to every write path.
// Once the LRU cache holds the new value and the write is marked complete,
// the write buffer entry is evicted: the LRU tier is now the system of
// record for reads, so the buffer does not need to keep pinning it.
func (c *Context) commit(slot uint32, meta *metadata.KeyMeta, key []byte, zs *model.ZSet) {
	ck := c.cacheKeyFor(slot, meta, key)
	c.Cache.Put(ck, zs)
	result := c.WriteBuffer.Put(ck, zs.Duplicate())
	writebuffer.Complete(result, nil)
	c.WriteBuffer.Evict(ck)
}

func (c *Context) saveMeta(slot uint32, key []byte, meta *metadata.KeyMeta, size int) error {
	meta.Size = uint32(size)
	return c.Meta.Put(context.Background(), slot, key, meta)
}

// errNotMaterialized is an internal sentinel meaning "this key is cold; the
// caller should fall through to the KV/storage-Redis tier directly instead
// of materializing the whole object," used only inside this package.
var errNotMaterialized = &notMaterializedError{}

type notMaterializedError struct{}

func (*notMaterializedError) Error() string { return "zsetcmd: key not materialized" }
