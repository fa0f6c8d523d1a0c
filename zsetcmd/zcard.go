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

	"github.com/kvredis/proxy/metadata"
	"github.com/kvredis/proxy/proxyerrors"
	"github.com/tidwall/redcon"
)

// ZCard implements ZCARD key.
func (c *Context) ZCard(slot uint32, args [][]byte) (interface{}, error) {
	if len(args) != 1 {
		return nil, proxyerrors.ErrWrongNumberOfArguments
	}
	key := args[0]

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

	return redcon.SimpleInt(int(meta.Size)), nil
}
