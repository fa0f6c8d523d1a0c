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
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/kvredis/proxy/config"
)

// HeartbeatClient is the narrow surface Dispatcher needs to probe a peer
// proxy's cport; satisfied by *redis.Client, and faked in tests.
type HeartbeatClient interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
	Close() error
}

// DialFunc opens a HeartbeatClient to addr; overridable in tests.
type DialFunc func(addr string) HeartbeatClient

func defaultDial(addr string) HeartbeatClient {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// subscriber is one client enrolled via SUBSCRIBE +switch-master.
type subscriber struct {
	id       string
	selected ProxyNode
	publish  func(payload string)
}

// Dispatcher holds the sentinel-mode process-wide state: the current node's
// identity, the full and online node tables, and the set of subscribed
// clients, all guarded by one mutex per spec.md §4.7/§5's explicit coarse
// serialization requirement.
type Dispatcher struct {
	cfg         config.SentinelConfig
	currentNode ProxyNode
	provider    NodesProvider
	dial        DialFunc

	mu          sync.Mutex
	allNodes    []ProxyNode
	onlineNodes []ProxyNode
	selfOnline  bool
	subscribers map[string]*subscriber

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Dispatcher for currentNode, backed by provider for the node
// list. The dispatcher starts with only currentNode considered online;
// Start begins the heartbeat loop that discovers the rest.
func New(cfg config.SentinelConfig, currentNode ProxyNode, provider NodesProvider) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg,
		currentNode: currentNode,
		provider:    provider,
		dial:        defaultDial,
		onlineNodes: []ProxyNode{currentNode},
		selfOnline:  true,
		subscribers: make(map[string]*subscriber),
		stopCh:      make(chan struct{}),
	}
}

// Start runs the heartbeat loop in the background every
// cfg.HeartbeatInterval, until Stop is called. Mirrors the teacher's
// AfterStartCallback: called once after process startup.
func (d *Dispatcher) Start() {
	d.tick()

	interval := d.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.tick()
			case <-d.stopCh:
				return
			}
		}
	}()
}

// Stop ends the heartbeat loop. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *Dispatcher) tick() {
	nodes, err := d.provider.Nodes()
	if err != nil {
		log.Err(err).Msg("sentinel: failed to reload node list")
		return
	}

	timeout := d.cfg.HeartbeatTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	online := make([]ProxyNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Equal(d.currentNode) {
			if d.isSelfOnline() {
				online = append(online, n)
			}
			continue
		}
		if d.heartbeat(n, timeout) {
			online = append(online, n)
		}
	}

	d.apply(nodes, online)
}

// heartbeat sends "SENTINEL heartbeat" to node's cport and reports whether
// it replied OK within timeout. A single failure marks the node down
// immediately, per spec.md §4.7's one-shot failure contract.
func (d *Dispatcher) heartbeat(node ProxyNode, timeout time.Duration) bool {
	client := d.dial(node.CAddr())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reply, err := client.Do(ctx, "SENTINEL", "heartbeat").Result()
	if err != nil {
		log.Warn().Err(err).Str("node", node.CAddr()).Msg("sentinel: heartbeat failed")
		return false
	}
	ok, _ := reply.(string)
	return ok == "OK"
}

// apply installs the freshly computed node/online tables and fires
// +switch-master notifications for every subscriber whose selected proxy
// changed state.
func (d *Dispatcher) apply(allNodes, online []ProxyNode) {
	d.mu.Lock()

	previouslyOnline := make(map[string]bool, len(d.onlineNodes))
	for _, n := range d.onlineNodes {
		previouslyOnline[n.Addr()] = true
	}

	d.allNodes = allNodes
	d.onlineNodes = sortNodes(online)
	for _, n := range d.onlineNodes {
		if n.Equal(d.currentNode) {
			d.selfOnline = true
		}
	}

	nowOnline := make(map[string]bool, len(d.onlineNodes))
	for _, n := range d.onlineNodes {
		nowOnline[n.Addr()] = true
	}

	var changed []ProxyNode
	for _, n := range allNodes {
		if previouslyOnline[n.Addr()] != nowOnline[n.Addr()] {
			changed = append(changed, n)
		}
	}

	toNotify := d.collectAffectedSubscribersLocked(changed)
	snapshot := append([]ProxyNode(nil), d.onlineNodes...)
	current := d.currentNode
	masterName := d.cfg.MasterName

	d.mu.Unlock()

	for _, sub := range toNotify {
		d.renotify(sub, snapshot, current, masterName)
	}
}

func (d *Dispatcher) collectAffectedSubscribersLocked(changed []ProxyNode) []*subscriber {
	if len(changed) == 0 {
		return nil
	}
	changedSet := make(map[string]bool, len(changed))
	for _, n := range changed {
		changedSet[n.Addr()] = true
	}

	var affected []*subscriber
	for _, sub := range d.subscribers {
		if changedSet[sub.selected.Addr()] {
			affected = append(affected, sub)
		}
	}
	return affected
}

func (d *Dispatcher) renotify(sub *subscriber, online []ProxyNode, current ProxyNode, masterName string) {
	old := sub.selected
	next := selectNode(sub.id, online, current)

	d.mu.Lock()
	sub.selected = next
	d.mu.Unlock()

	sub.publish(switchMasterPayload(masterName, old, next))
}

func (d *Dispatcher) isSelfOnline() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selfOnline
}

// GetMasterAddrByName implements SENTINEL get-master-addr-by-name: picks
// the pseudo-master deterministically for id (spec.md §4.7's selection
// algorithm), falling back to the current node if no node is online.
func (d *Dispatcher) GetMasterAddrByName(id string) ProxyNode {
	d.mu.Lock()
	online := append([]ProxyNode(nil), d.onlineNodes...)
	current := d.currentNode
	d.mu.Unlock()

	return selectNode(id, online, current)
}

// selectNode implements spec.md §4.7: index = abs(hash(id)) % len(online),
// falling back to current when online is empty.
func selectNode(id string, online []ProxyNode, current ProxyNode) ProxyNode {
	if len(online) == 0 {
		return current
	}
	h := xxhash.Sum64String(id)
	idx := int(h % uint64(len(online)))
	return online[idx]
}

// Subscribe enrolls a client under clientID for +switch-master
// notifications, immediately selecting its pseudo-master using id (the
// client's source address, per spec.md's "selection is deterministic per
// client"). publish is called with the raw message payload whenever that
// client's selected proxy changes.
func (d *Dispatcher) Subscribe(clientID, id string, publish func(payload string)) ProxyNode {
	d.mu.Lock()
	defer d.mu.Unlock()

	selected := selectNode(id, d.onlineNodes, d.currentNode)
	d.subscribers[clientID] = &subscriber{id: id, selected: selected, publish: publish}
	return selected
}

// Unsubscribe removes clientID's subscription, e.g. on disconnect.
func (d *Dispatcher) Unsubscribe(clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subscribers, clientID)
}

// OnlineNodes returns a snapshot of the current online-node table.
func (d *Dispatcher) OnlineNodes() []ProxyNode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ProxyNode(nil), d.onlineNodes...)
}

// AllNodes returns a snapshot of the full node table.
func (d *Dispatcher) AllNodes() []ProxyNode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ProxyNode(nil), d.allNodes...)
}

// IsOnline reports the current node's own ONLINE/OFFLINE status, the
// criterion SENTINEL heartbeat (inbound, on this node's cport) answers by.
func (d *Dispatcher) IsOnline() bool {
	return d.isSelfOnline()
}
