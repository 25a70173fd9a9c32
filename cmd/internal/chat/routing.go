package chat

import "sync"

// RoutingTable maps a user's conversation to the attendant connection pinned
// to serve it, and an attendant connection back to the user it currently
// serves. Bindings are advisory caches for routing efficiency, never
// authoritative state: the message store is the durable record, and losing
// every binding merely degrades delivery to broadcast-to-all-staff.
//
// Bindings are overwritten (last write wins) and never explicitly deleted;
// a binding to a disconnected attendant is detected against the presence
// registry at delivery time and superseded by the next pin.
type RoutingTable struct {
	mu              sync.Mutex
	userToAttendant map[string]string // normalized username -> attendant handle
	attendantToUser map[string]string // attendant handle -> normalized username
}

// NewRoutingTable constructs an empty table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{
		userToAttendant: make(map[string]string),
		attendantToUser: make(map[string]string),
	}
}

// BindUserToAttendant pins a user's conversation to an attendant connection.
func (t *RoutingTable) BindUserToAttendant(username, attendantHandle string) {
	username = NormalizeUsername(username)
	if username == "" || attendantHandle == "" {
		return
	}

	t.mu.Lock()
	t.userToAttendant[username] = attendantHandle
	t.mu.Unlock()
}

// AttendantFor returns the attendant handle pinned to a user's conversation.
func (t *RoutingTable) AttendantFor(username string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.userToAttendant[NormalizeUsername(username)]
	return h, ok
}

// BindAttendantToUser records the user an attendant connection is serving.
// Set whenever a message actually flows between the two sides.
func (t *RoutingTable) BindAttendantToUser(attendantHandle, username string) {
	username = NormalizeUsername(username)
	if username == "" || attendantHandle == "" {
		return
	}

	t.mu.Lock()
	t.attendantToUser[attendantHandle] = username
	t.mu.Unlock()
}

// UserFor returns the user an attendant connection most recently served.
func (t *RoutingTable) UserFor(attendantHandle string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.attendantToUser[attendantHandle]
	return u, ok
}

// Reset empties both directions. Test isolation only.
func (t *RoutingTable) Reset() {
	t.mu.Lock()
	t.userToAttendant = make(map[string]string)
	t.attendantToUser = make(map[string]string)
	t.mu.Unlock()
}
