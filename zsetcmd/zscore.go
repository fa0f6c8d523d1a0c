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

// ZScore implements ZSCORE key member.
func (c *Context) ZScore(slot uint32, args [][]byte) (interface{}, error) {
	if len(args) != 2 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}
	key, member := args[0], args[1]

	zs, exists, err := c.loadForRead(slot, key, false)
	if err == errNotMaterialized {
		return c.zscoreColdPath(slot, key, member)
	}
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	score, ok := zs.Score(string(member))
	if !ok {
		return nil, nil
	}
	return formatScore(score), nil
}

func (c *Context) zscoreColdPath(slot uint32, key, member []byte) (interface{}, error) {
	meta, err := c.resolveMetaForRead(slot, key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	if c.Encoding == config.EncodingV1 {
		reply, err := c.forwardV1(key, "ZSCORE", member)
		if err != nil {
			return nil, err
		}
		if reply == nil {
			return nil, nil
		}
		score, err := parseReplyFloat(reply)
		if err != nil {
			return nil, err
		}
		return formatScore(score), nil
	}

	score, ok, err := c.scoreOfV0(slot, meta, key, member)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return formatScore(score), nil
}
