package chat

import (
	"log/slog"
	"sync"

	v1 "chamados/contracts/chat/v1"
)

// Switchboard is the process-wide broadcast/fan-out transport. It maps
// connection handles to live clients and group names to member sets, and
// delivers envelopes to one connection or to every member of a group.
//
// Concurrency guarantees:
//   - Register/Unregister/JoinGroup/LeaveGroup are safe under concurrent delivery.
//   - Delivery never blocks on a slow receiver: each client has a bounded FIFO
//     send queue and an envelope is dropped (and counted) when it is full.
//   - Delivery is panic-safe because Client.Send is never closed by the server.
//   - Events enqueued to the same connection by one goroutine arrive in order.
type Switchboard struct {
	log *slog.Logger

	mu     sync.RWMutex
	conns  map[string]*Client
	groups map[string]map[string]*Client
}

// NewSwitchboard constructs an empty Switchboard.
func NewSwitchboard(log *slog.Logger) *Switchboard {
	return &Switchboard{
		log:    log,
		conns:  make(map[string]*Client),
		groups: make(map[string]map[string]*Client),
	}
}

// Register makes a client addressable by its handle.
func (s *Switchboard) Register(c *Client) {
	if s == nil || c == nil || c.Handle == "" {
		return
	}

	s.mu.Lock()
	s.conns[c.Handle] = c
	s.mu.Unlock()
}

// Unregister removes a client from the connection table and from every group
// it had joined, then signals the client to shut down. Safe to call more than
// once per handle; only the first call finds anything to remove.
func (s *Switchboard) Unregister(handle string) {
	if s == nil || handle == "" {
		return
	}

	var cl *Client

	s.mu.Lock()
	cl = s.conns[handle]
	delete(s.conns, handle)
	for name, members := range s.groups {
		delete(members, handle)
		if len(members) == 0 {
			delete(s.groups, name)
		}
	}
	s.mu.Unlock()

	// Signal client shutdown after removing it from membership. This ordering
	// avoids race windows where a broadcaster still holds a pointer while the
	// client goroutines are being torn down.
	if cl != nil {
		cl.Close()
	}
}

// Connection returns the live client for a handle, if any.
func (s *Switchboard) Connection(handle string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conns[handle]
	return c, ok
}

// JoinGroup adds a registered client to a named group.
func (s *Switchboard) JoinGroup(group string, c *Client) {
	if s == nil || c == nil || group == "" || c.Handle == "" {
		return
	}

	s.mu.Lock()
	members := s.groups[group]
	if members == nil {
		members = make(map[string]*Client)
		s.groups[group] = members
	}
	members[c.Handle] = c
	s.mu.Unlock()

	s.log.Debug("switchboard.group.join", "group", group, "handle", c.Handle)
}

// LeaveGroup removes one handle from a named group.
func (s *Switchboard) LeaveGroup(group, handle string) {
	if s == nil || group == "" || handle == "" {
		return
	}

	s.mu.Lock()
	if members := s.groups[group]; members != nil {
		delete(members, handle)
		if len(members) == 0 {
			delete(s.groups, group)
		}
	}
	s.mu.Unlock()
}

// SendToGroup fanouts an envelope to all members of a group and reports how
// many queues accepted it. Delivery is at-most-once per member per call.
func (s *Switchboard) SendToGroup(group string, env v1.Envelope) int {
	if s == nil || group == "" {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for _, m := range s.groups[group] {
		if s.enqueue(m, env) {
			delivered++
		}
	}
	return delivered
}

// SendToConnection delivers an envelope to one connection. It reports false
// when the handle is unknown, the client is shutting down, or its queue is
// full — callers treat all three as "not delivered".
func (s *Switchboard) SendToConnection(handle string, env v1.Envelope) bool {
	if s == nil || handle == "" {
		return false
	}

	s.mu.RLock()
	c := s.conns[handle]
	s.mu.RUnlock()

	return s.enqueue(c, env)
}

func (s *Switchboard) enqueue(c *Client, env v1.Envelope) bool {
	if c == nil {
		return false
	}

	select {
	case <-c.Done():
		// Skip clients that are shutting down.
		return false
	default:
	}

	select {
	case c.Send <- env:
		return true
	default:
		// Drop rather than block the whole fanout.
		metricDroppedDeliveries.Inc()
		s.log.Debug("switchboard.deliver.drop", "handle", c.Handle, "type", env.Type)
		return false
	}
}

// Reset empties the connection and group tables. Test isolation only.
func (s *Switchboard) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns = make(map[string]*Client)
	s.groups = make(map[string]map[string]*Client)
}
