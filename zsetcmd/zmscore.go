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

// ZMScore implements ZMSCORE key member [member ...], preserving request
// order and returning a nil element for every member not present.
func (c *Context) ZMScore(slot uint32, args [][]byte) (interface{}, error) {
	if len(args) < 2 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}
	key := args[0]
	members := args[1:]

	zs, exists, err := c.loadForRead(slot, key, false)
	switch err {
	case nil:
		if !exists {
			return repeatNil(len(members)), nil
		}
		out := make([]interface{}, len(members))
		for i, m := range members {
			if score, ok := zs.Score(string(m)); ok {
				out[i] = formatScore(score)
			}
		}
		return out, nil
	case errNotMaterialized:
		return c.zmscoreColdPath(slot, key, members)
	default:
		return nil, err
	}
}

func (c *Context) zmscoreColdPath(slot uint32, key []byte, members [][]byte) (interface{}, error) {
	meta, err := c.resolveMetaForRead(slot, key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return repeatNil(len(members)), nil
	}

	out := make([]interface{}, len(members))

	if c.Encoding == config.EncodingV1 {
		for i, m := range members {
			reply, err := c.forwardV1(key, "ZSCORE", m)
			if err != nil {
				return nil, err
			}
			if reply == nil {
				continue
			}
			score, err := parseReplyFloat(reply)
			if err != nil {
				return nil, err
			}
			out[i] = formatScore(score)
		}
		return out, nil
	}

	for i, m := range members {
		score, ok, err := c.scoreOfV0(slot, meta, key, m)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = formatScore(score)
		}
	}
	return out, nil
}

func repeatNil(n int) []interface{} {
	return make([]interface{}, n)
}
