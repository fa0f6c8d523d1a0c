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

// ZRem implements ZREM key member [member ...].
func (c *Context) ZRem(slot uint32, args [][]byte) (interface{}, error) {
	if len(args) < 2 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}
	key := args[0]
	members := args[1:]

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

	zs, _, err := c.loadForWrite(slot, key)
	if err != nil {
		return nil, err
	}

	removed := 0
	for _, m := range members {
		if zs.Remove(string(m)) {
			removed++
		}
	}

	if c.Encoding == config.EncodingV1 {
		cmdArgs := make([]interface{}, 0, len(members)+2)
		cmdArgs = append(cmdArgs, "ZREM", string(key))
		for _, m := range members {
			cmdArgs = append(cmdArgs, string(m))
		}
		if _, err := c.StorageRedis.SendCommand(context.Background(), cmdArgs...); err != nil {
			return nil, err
		}
	} else {
		for _, m := range members {
			if _, err := c.removeMemberV0(slot, meta, key, m); err != nil {
				return nil, err
			}
		}
	}

	if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
		return nil, err
	}
	c.commit(slot, meta, key, zs)

	return redcon.SimpleInt(removed), nil
}
