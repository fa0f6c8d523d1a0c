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
	"github.com/kvredis/proxy/proxyerrors"
	"github.com/tidwall/redcon"
)

// ZAdd implements ZADD key score member [score member ...]. NX/XX/GT/LT/CH
// flags are not part of the detailed spec and are intentionally
// unsupported; a leading flag token is rejected rather than silently
// ignored, either as a wrong-number-of-arguments error (when it makes the
// argument count even) or as a not-a-float error (when it lands in a score
// position).
func (c *Context) ZAdd(slot uint32, args [][]byte) (interface{}, error) {
	if len(args) < 3 || len(args)%2 != 1 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}

	key := args[0]
	pairs := args[1:]

	type scored struct {
		member []byte
		score  float64
	}
	members := make([]scored, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		score, err := parseFloatStrict(string(pairs[i]))
		if err != nil {
			return nil, err
		}
		members = append(members, scored{member: pairs[i+1], score: score})
	}

	zs, meta, err := c.loadForWrite(slot, key)
	if err != nil {
		return nil, err
	}

	added := 0
	for _, m := range members {
		if zs.Add(string(m.member), m.score) {
			added++
		}
	}

	if c.Encoding == config.EncodingV1 {
		cmdArgs := make([]interface{}, 0, 2+len(members)*2)
		cmdArgs = append(cmdArgs, "ZADD", string(key))
		for _, m := range members {
			cmdArgs = append(cmdArgs, formatScore(m.score), string(m.member))
		}
		if _, err := c.StorageRedis.SendCommand(context.Background(), cmdArgs...); err != nil {
			return nil, err
		}
	} else {
		for _, m := range members {
			if _, err := c.putMemberV0(slot, meta, key, m.member, m.score); err != nil {
				return nil, err
			}
		}
	}

	if err := c.saveMeta(slot, key, meta, zs.Len()); err != nil {
		return nil, err
	}
	c.commit(slot, meta, key, zs)

	return redcon.SimpleInt(added), nil
}
