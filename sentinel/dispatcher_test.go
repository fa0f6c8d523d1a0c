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

package sentinel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvredis/proxy/config"
)

type staticNodesProvider struct {
	nodes []ProxyNode
}

func (p staticNodesProvider) Nodes() ([]ProxyNode, error) {
	return p.nodes, nil
}

// fakeHeartbeatClient replies OK unless its address is marked down.
type fakeHeartbeatClient struct {
	addr string
	down map[string]bool
	mu   *sync.Mutex
}

func (c *fakeHeartbeatClient) Do(ctx context.Context, args ...interface{}) *redis.Cmd {
	c.mu.Lock()
	isDown := c.down[c.addr]
	c.mu.Unlock()

	cmd := redis.NewCmd(ctx, args...)
	if isDown {
		cmd.SetErr(context.DeadlineExceeded)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (c *fakeHeartbeatClient) Close() error { return nil }

func newTestDispatcher(nodes []ProxyNode, current ProxyNode, down map[string]bool) *Dispatcher {
	var mu sync.Mutex
	d := New(config.SentinelConfig{
		MasterName:        "test-master",
		HeartbeatInterval: time.Hour,
		HeartbeatTimeout:  time.Second,
	}, current, staticNodesProvider{nodes: nodes})

	d.dial = func(addr string) HeartbeatClient {
		return &fakeHeartbeatClient{addr: addr, down: down, mu: &mu}
	}
	return d
}

func TestSelectNodeDeterministic(t *testing.T) {
	online := []ProxyNode{
		{Host: "10.0.0.1", Port: 6379, CPort: 7379},
		{Host: "10.0.0.2", Port: 6379, CPort: 7379},
		{Host: "10.0.0.3", Port: 6379, CPort: 7379},
	}
	current := online[0]

	first := selectNode("client-a", online, current)
	second := selectNode("client-a", online, current)
	assert.Equal(t, first, second, "selection must be deterministic for the same id")
}

func TestSelectNodeFallsBackToCurrentWhenNoneOnline(t *testing.T) {
	current := ProxyNode{Host: "10.0.0.1", Port: 6379, CPort: 7379}
	got := selectNode("anything", nil, current)
	assert.Equal(t, current, got)
}

func TestDispatcherTickMarksUnreachableNodeOffline(t *testing.T) {
	current := ProxyNode{Host: "10.0.0.1", Port: 6379, CPort: 7379}
	other := ProxyNode{Host: "10.0.0.2", Port: 6379, CPort: 7379}

	down := map[string]bool{other.CAddr(): true}
	d := newTestDispatcher([]ProxyNode{current, other}, current, down)

	d.tick()

	online := d.OnlineNodes()
	require.Len(t, online, 1)
	assert.True(t, online[0].Equal(current))

	all := d.AllNodes()
	assert.Len(t, all, 2)
}

func TestDispatcherTickBringsNodeBackOnline(t *testing.T) {
	current := ProxyNode{Host: "10.0.0.1", Port: 6379, CPort: 7379}
	other := ProxyNode{Host: "10.0.0.2", Port: 6379, CPort: 7379}

	down := map[string]bool{other.CAddr(): true}
	d := newTestDispatcher([]ProxyNode{current, other}, current, down)

	d.tick()
	require.Len(t, d.OnlineNodes(), 1)

	down[other.CAddr()] = false
	d.tick()

	online := d.OnlineNodes()
	assert.Len(t, online, 2)
}

func TestOnlineNodesStaysSortedAndDeduped(t *testing.T) {
	current := ProxyNode{Host: "10.0.0.1", Port: 6379, CPort: 7379}
	b := ProxyNode{Host: "10.0.0.3", Port: 6379, CPort: 7379}
	c := ProxyNode{Host: "10.0.0.2", Port: 6379, CPort: 7379}

	d := newTestDispatcher([]ProxyNode{b, current, c, current}, current, nil)
	d.tick()

	online := d.OnlineNodes()
	require.Len(t, online, 3)
	assert.True(t, online[0].Equal(current))
	assert.True(t, online[1].Equal(c))
	assert.True(t, online[2].Equal(b))
}

func TestSubscribeNotifiedOnSwitchMaster(t *testing.T) {
	current := ProxyNode{Host: "10.0.0.1", Port: 6379, CPort: 7379}
	other := ProxyNode{Host: "10.0.0.2", Port: 6379, CPort: 7379}

	down := map[string]bool{}
	d := newTestDispatcher([]ProxyNode{current, other}, current, down)
	d.tick()

	var mu sync.Mutex
	var notifications []string
	id := "client-under-test"
	d.Subscribe(id, id, func(payload string) {
		mu.Lock()
		notifications = append(notifications, payload)
		mu.Unlock()
	})

	// Force this subscriber's selected proxy to "other" regardless of where
	// the hash landed it, so the assertion below is deterministic.
	d.mu.Lock()
	d.subscribers[id].selected = other
	d.mu.Unlock()

	down[other.CAddr()] = true
	d.tick()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notifications, 1)
	assert.Contains(t, notifications[0], "test-master")
}

func TestParseNodeAddr(t *testing.T) {
	node, err := ParseNodeAddr("127.0.0.1:6379:7379")
	require.NoError(t, err)
	assert.Equal(t, ProxyNode{Host: "127.0.0.1", Port: 6379, CPort: 7379}, node)

	_, err = ParseNodeAddr("not-valid")
	assert.Error(t, err)
}
