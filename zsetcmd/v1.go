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
	"fmt"

	"github.com/kvredis/proxy/model"
)

// loadFromStorageRedis materializes key by forwarding ZRANGE ... WITHSCORES
// to the mirrored storage Redis — the v1 equivalent of loadFromKVv0's
// member->score scan.
func (c *Context) loadFromStorageRedis(key []byte) (*model.ZSet, error) {
	reply, err := c.StorageRedis.SendCommand(context.Background(), "ZRANGE", string(key), 0, -1, "WITHSCORES")
	if err != nil {
		return nil, err
	}

	items, ok := reply.([]interface{})
	if !ok {
		return model.NewZSet(), nil
	}

	zs := model.NewZSet()
	for i := 0; i+1 < len(items); i += 2 {
		member := fmt.Sprintf("%v", items[i])
		score, err := parseReplyFloat(items[i+1])
		if err != nil {
			return nil, err
		}
		zs.Add(member, score)
	}
	return zs, nil
}

// forwardV1 issues args against the storage Redis with key substituted for
// the logical key (encoding v1's key translation is the identity mapping:
// the same slot backs exactly one storage Redis instance).
func (c *Context) forwardV1(key []byte, args ...interface{}) (interface{}, error) {
	full := make([]interface{}, 0, len(args)+1)
	full = append(full, args[0])
	full = append(full, string(key))
	full = append(full, args[1:]...)
	return c.StorageRedis.SendCommand(context.Background(), full...)
}

func parseReplyFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case string:
		return parseFloatStrict(t)
	case []byte:
		return parseFloatStrict(string(t))
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("ERR command execute error: unexpected score reply type %T", v)
	}
}
