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
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/redcon"
	"github.com/rs/zerolog/log"

	"github.com/kvredis/proxy/config"
)

// Handler serves the Sentinel-mode control-port protocol (spec.md §4.7/§6):
// AUTH, HELLO, PING, QUIT, SENTINEL heartbeat, SENTINEL
// get-master-addr-by-name, and SUBSCRIBE +switch-master. Every other command
// is rejected, since a Sentinel-mode cport is not a data port.
type Handler struct {
	dispatcher *Dispatcher
	username   string
	password   string

	mu       sync.Mutex
	detached map[string]redcon.DetachedConn
}

// NewHandler returns a Handler serving d's node table over a redcon server
// bound to the cport.
func NewHandler(d *Dispatcher, cfg config.SentinelConfig) *Handler {
	return &Handler{
		dispatcher: d,
		username:   cfg.SentinelUsername,
		password:   cfg.SentinelPassword,
		detached:   make(map[string]redcon.DetachedConn),
	}
}

// Accept is the redcon AcceptFunc: every connection is accepted, auth state
// lives per-connection in its Conn.SetContext.
func (h *Handler) Accept(conn redcon.Conn) bool {
	return true
}

// Closed is the redcon CloseFunc: tears down any pub/sub subscription and
// detached connection left behind by a disconnecting client.
func (h *Handler) Closed(conn redcon.Conn, err error) {
	id := conn.RemoteAddr()
	h.dispatcher.Unsubscribe(id)

	h.mu.Lock()
	delete(h.detached, id)
	h.mu.Unlock()
}

type connState struct {
	authenticated bool
}

func stateOf(conn redcon.Conn) *connState {
	if s, ok := conn.Context().(*connState); ok {
		return s
	}
	s := &connState{}
	conn.SetContext(s)
	return s
}

func (h *Handler) needsAuth() bool {
	return h.password != ""
}

// Handle dispatches one RESP command on the cport.
func (h *Handler) Handle(conn redcon.Conn, cmd redcon.Command) {
	if len(cmd.Args) == 0 {
		conn.WriteError("ERR empty command")
		return
	}
	name := strings.ToLower(string(cmd.Args[0]))
	args := cmd.Args[1:]

	switch name {
	case "auth":
		h.handleAuth(conn, args)
		return
	case "hello":
		h.handleHello(conn, args)
		return
	case "ping":
		conn.WriteString("PONG")
		return
	case "quit":
		conn.WriteString("OK")
		_ = conn.Close()
		return
	}

	if h.needsAuth() && !stateOf(conn).authenticated {
		conn.WriteError("NOAUTH Authentication required")
		return
	}

	switch name {
	case "sentinel":
		h.handleSentinel(conn, args)
	case "subscribe":
		h.handleSubscribe(conn, args)
	default:
		conn.WriteError(fmt.Sprintf("ERR unknown command '%s' (sentinel mode supports a limited command set)", name))
	}
}

func (h *Handler) handleAuth(conn redcon.Conn, args [][]byte) {
	if !h.needsAuth() {
		conn.WriteError("ERR Client sent AUTH, but no password is set")
		return
	}

	var user, pass string
	switch len(args) {
	case 1:
		pass = string(args[0])
	case 2:
		user, pass = string(args[0]), string(args[1])
	default:
		conn.WriteError("ERR wrong number of arguments for 'auth' command")
		return
	}

	if (h.username != "" && user != h.username) || pass != h.password {
		conn.WriteError("WRONGPASS invalid username-password pair or user is disabled")
		return
	}

	stateOf(conn).authenticated = true
	conn.WriteString("OK")
}

func (h *Handler) handleHello(conn redcon.Conn, args [][]byte) {
	conn.WriteArray(14)
	pairs := []string{
		"server", "redis",
		"version", "7.0.0",
		"proto", "2",
		"id", "0",
		"mode", "sentinel",
		"role", "master",
		"modules", "",
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		conn.WriteBulkString(pairs[i])
		conn.WriteBulkString(pairs[i+1])
	}
}

func (h *Handler) handleSentinel(conn redcon.Conn, args [][]byte) {
	if len(args) == 0 {
		conn.WriteError("ERR wrong number of arguments for 'sentinel' command")
		return
	}
	sub := strings.ToLower(string(args[0]))

	switch sub {
	case "heartbeat":
		if !h.dispatcher.IsOnline() {
			conn.WriteError("ERR this proxy node is not online")
			return
		}
		conn.WriteString("OK")
	case "get-master-addr-by-name":
		if len(args) != 2 {
			conn.WriteError("ERR wrong number of arguments for 'sentinel get-master-addr-by-name'")
			return
		}
		id := conn.RemoteAddr()
		node := h.dispatcher.GetMasterAddrByName(id)
		conn.WriteArray(2)
		conn.WriteBulkString(node.Host)
		conn.WriteBulkString(fmt.Sprintf("%d", node.Port))
	default:
		conn.WriteError(fmt.Sprintf("ERR unknown SENTINEL subcommand '%s'", sub))
	}
}

// handleSubscribe implements SUBSCRIBE +switch-master. The connection is
// detached from redcon's event loop so the dispatcher can push async
// notifications to it from the heartbeat goroutine (spec.md §4.7).
func (h *Handler) handleSubscribe(conn redcon.Conn, args [][]byte) {
	if len(args) != 1 || strings.ToLower(string(args[0])) != "+switch-master" {
		conn.WriteError("ERR sentinel mode only supports SUBSCRIBE +switch-master")
		return
	}

	id := conn.RemoteAddr()
	dconn := conn.Detach()

	h.mu.Lock()
	h.detached[id] = dconn
	h.mu.Unlock()

	dconn.WriteArray(3)
	dconn.WriteBulkString("subscribe")
	dconn.WriteBulkString("+switch-master")
	dconn.WriteInt(1)
	if err := dconn.Flush(); err != nil {
		log.Err(err).Str("client", id).Msg("sentinel: failed to ack subscribe")
		h.mu.Lock()
		delete(h.detached, id)
		h.mu.Unlock()
		_ = dconn.Close()
		return
	}

	h.dispatcher.Subscribe(id, id, func(payload string) {
		h.push(id, payload)
	})

	go func() {
		defer func() {
			h.dispatcher.Unsubscribe(id)
			h.mu.Lock()
			delete(h.detached, id)
			h.mu.Unlock()
			_ = dconn.Close()
		}()
		// A subscribed client sends no further commands; block until it
		// disconnects so Closed's cleanup path is reachable.
		dconn.ReadCommand()
	}()
}

func (h *Handler) push(clientID, payload string) {
	h.mu.Lock()
	dconn, ok := h.detached[clientID]
	h.mu.Unlock()
	if !ok {
		return
	}

	dconn.WriteArray(3)
	dconn.WriteBulkString("message")
	dconn.WriteBulkString("+switch-master")
	dconn.WriteBulkString(payload)
	if err := dconn.Flush(); err != nil {
		log.Err(err).Str("client", clientID).Msg("sentinel: failed to push switch-master notification")
	}
}

// switchMasterPayload formats the +switch-master message body: master name,
// old host/port, new host/port, matching Redis Sentinel's own wire format.
func switchMasterPayload(masterName string, old, next ProxyNode) string {
	return fmt.Sprintf("%s %s %d %s %d", masterName, old.Host, old.Port, next.Host, next.Port)
}
