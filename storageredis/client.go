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

// Package storageredis is the encoding-v1 mirror target: commanders that
// run under v1 forward every mutation here instead of writing per-member
// sub-keys to the KV engine (only the key's metadata is written there), so
// the value can be served straight off a real Redis for
// workloads that want Redis-native replication/AOF underneath the proxy.
package storageredis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Client is the narrow surface commanders call into; it never leaks
// go-redis types past this package so zsetcmd stays engine-agnostic.
type Client interface {
	SendCommand(ctx context.Context, args ...interface{}) (interface{}, error)
	Close() error
}

// GoRedisClient implements Client over github.com/redis/go-redis/v9.
type GoRedisClient struct {
	rdb *redis.Client
}

// Dial connects to a single storage-Redis instance at addr.
func Dial(addr string) *GoRedisClient {
	return &GoRedisClient{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *GoRedisClient) SendCommand(ctx context.Context, args ...interface{}) (interface{}, error) {
	return c.rdb.Do(ctx, args...).Result()
}

func (c *GoRedisClient) Close() error {
	return c.rdb.Close()
}
