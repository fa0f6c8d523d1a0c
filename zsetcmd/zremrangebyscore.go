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

	"github.com/kvredis/proxy/config"
	"github.com/kvredis/proxy/metadata"
	"github.com/kvredis/proxy/proxyerrors"
	"github.com/tidwall/redcon"
)

// ZRemRangeByScore implements ZREMRANGEBYSCORE key min max, the score-range
// sibling of ZREMRANGEBYLEX, following the same canonical tier order.
func (c *Context) ZRemRangeByScore(slot uint32, args [][]byte) (interface{}, error) {
	if len(args) != 3 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}
	key := args[0]

	min, err := parseScoreBound(args[1])
	if err != nil {
		return nil, err
	}
	max, err := parseScoreBound(args[2])
	if err != nil {
		return nil, err
	}
	if min.value > max.value {
		return redcon.SimpleInt(0), nil
	}

	meta, err := c.Meta.Get(context.Background(), slot, key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return redcon.SimpleInt(0), nil
	}
	if meta.Type != metadata.TypeZSet {
		return nil, metadata.ErrWrongType
	}

	ck := c.cacheKeyFor(slot, meta, key)

	if zs, ok := c.WriteBuffer.Get(ck); ok {
		removed := zs.RemoveRangeByScore(min.value, max.value, min.exclusive, max.exclusive)
		if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
			return nil, err
		}
		c.commit(slot, meta, key, zs)
		return redcon.SimpleInt(removed), nil
	}
	if zs, ok := c.Cache.Get(ck); ok {
		removed := zs.RemoveRangeByScore(min.value, max.value, min.exclusive, max.exclusive)
		if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
			return nil, err
		}
		c.commit(slot, meta, key, zs)
		return redcon.SimpleInt(removed), nil
	}

	if c.Encoding == config.EncodingV1 {
		return c.remRangeByScoreV1(slot, meta, key, min, max)
	}
	return c.remRangeByScoreV0(slot, meta, key, min, max)
}

func (c *Context) remRangeByScoreV0(slot uint32, meta *metadata.KeyMeta, key []byte, min, max scoreBound) (interface{}, error) {
	zs, err := c.loadFromKVv0(slot, meta, key)
	if err != nil {
		return nil, err
	}

	victims := zs.RangeByScore(min.value, max.value, min.exclusive, max.exclusive, 0, -1)
	removed := 0
	for _, v := range victims {
		ok, err := c.removeMemberV0(slot, meta, key, []byte(v.Name))
		if err != nil {
			return nil, err
		}
		if ok {
			removed++
		}
	}

	newSize := int(meta.Size) - removed
	if newSize < 0 {
		newSize = 0
	}
	if err := c.saveMeta(slot, key, meta, newSize); err != nil {
		return nil, err
	}
	c.Cache.Remove(c.cacheKeyFor(slot, meta, key))

	return redcon.SimpleInt(removed), nil
}

func (c *Context) remRangeByScoreV1(slot uint32, meta *metadata.KeyMeta, key []byte, min, max scoreBound) (interface{}, error) {
	zs, err := c.loadFromStorageRedis(key)
	if err != nil {
		return nil, err
	}

	removed := zs.RemoveRangeByScore(min.value, max.value, min.exclusive, max.exclusive)
	if removed == 0 {
		c.Cache.Put(c.cacheKeyFor(slot, meta, key), zs)
		return redcon.SimpleInt(0), nil
	}

	if _, err := c.StorageRedis.SendCommand(context.Background(), "ZREMRANGEBYSCORE", string(key),
		scoreBoundToRESP(min), scoreBoundToRESP(max)); err != nil {
		return nil, err
	}

	if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
		return nil, err
	}
	c.commit(slot, meta, key, zs)
	return redcon.SimpleInt(removed), nil
}
