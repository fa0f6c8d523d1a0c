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
	"github.com/kvredis/proxy/config"
	"github.com/kvredis/proxy/proxyerrors"
)

// ZIncrBy implements ZINCRBY key increment member.
func (c *Context) ZIncrBy(slot uint32, args [][]byte) (interface{}, error) {
	if len(args) != 3 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}
	key, incrRaw, member := args[0], args[1], args[2]

	delta, err := parseFloatStrict(string(incrRaw))
	if err != nil {
		return nil, err
	}

	zs, meta, err := c.loadForWrite(slot, key)
	if err != nil {
		return nil, err
	}

	newScore := zs.IncrBy(string(member), delta)

	if c.Encoding == config.EncodingV1 {
		if _, err := c.forwardV1(key, "ZINCRBY", formatScore(delta), member); err != nil {
			return nil, err
		}
	} else {
		if _, err := c.putMemberV0(slot, meta, key, member, newScore); err != nil {
			return nil, err
		}
	}

	if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
		return nil, err
	}
	c.commit(slot, meta, key, zs)

	return formatScore(newScore), nil
}
