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

// Package command wires RESP command names onto Commander implementations
// and runs them behind a panic barrier, the way the teacher's cmdHandler
// map did, generalized to carry a per-slot execution context and to turn
// both errors and panics into RESP error replies.
package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/redcon"

	"github.com/kvredis/proxy/metrics"
	"github.com/kvredis/proxy/proxyerrors"
)

// Commander is one RESP command's full implementation. Args excludes the
// command name itself (cmd.Args[1:]).
type Commander interface {
	// Execute runs the command against slot and returns a value
	// redcon.Conn.WriteAny can serialize, or an error.
	Execute(slot uint32, args [][]byte) (interface{}, error)
}

// CommanderFunc adapts a plain function to Commander.
type CommanderFunc func(slot uint32, args [][]byte) (interface{}, error)

func (f CommanderFunc) Execute(slot uint32, args [][]byte) (interface{}, error) {
	return f(slot, args)
}

// Dispatcher routes a RESP command to its Commander and reports latency and
// errors to metrics.
type Dispatcher struct {
	commands map[string]Commander
	metrics  metrics.Collector
	slotOf   func(conn redcon.Conn) uint32
}

// NewDispatcher returns an empty Dispatcher. slotOf resolves the slot for
// an incoming connection; pass nil to always use slot 0 (single-tenant).
func NewDispatcher(m metrics.Collector, slotOf func(conn redcon.Conn) uint32) *Dispatcher {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Dispatcher{
		commands: make(map[string]Commander),
		metrics:  m,
		slotOf:   slotOf,
	}
}

// Register binds name (case-insensitive) to c.
func (d *Dispatcher) Register(name string, c Commander) {
	d.commands[strings.ToLower(name)] = c
}

// RegisterFunc is Register for a plain function.
func (d *Dispatcher) RegisterFunc(name string, fn func(slot uint32, args [][]byte) (interface{}, error)) {
	d.Register(name, CommanderFunc(fn))
}

// Handle is a redcon command handler: look up cmd's Commander, run it
// behind a recover() barrier, and write the reply or error to conn.
func (d *Dispatcher) Handle(conn redcon.Conn, cmd redcon.Command) {
	if len(cmd.Args) == 0 {
		conn.WriteError(proxyerrors.ToReplyMessage(proxyerrors.ErrSyntax))
		return
	}

	name := strings.ToLower(string(cmd.Args[0]))

	switch name {
	case "ping":
		conn.WriteString("PONG")
		return
	case "quit":
		conn.WriteString("OK")
		_ = conn.Close()
		return
	}

	c, ok := d.commands[name]
	if !ok {
		conn.WriteError(fmt.Sprintf("ERR unknown command '%s'", name))
		return
	}

	slot := uint32(0)
	if d.slotOf != nil {
		slot = d.slotOf(conn)
	}

	start := time.Now()
	reply, err := d.runSafely(c, slot, cmd.Args[1:])
	d.metrics.CommandLatency(name, time.Since(start))

	if err != nil {
		d.metrics.CommandError(name)
		conn.WriteError(proxyerrors.ToReplyMessage(err))
		return
	}

	conn.WriteAny(reply)
}

func (d *Dispatcher) runSafely(c Commander, slot uint32, args [][]byte) (reply interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ERR command execute error: %v", r)
		}
	}()
	return c.Execute(slot, args)
}
