package chat

import (
	"sort"
	"sync"

	v1 "chamados/contracts/chat/v1"
)

// PresenceRegistry tracks currently online attendant connections, keyed by
// connection handle. An attendant with two tabs open has two independent
// entries. Presence is ephemeral by design: entries are lost on restart and
// self-heal when staff reconnect.
type PresenceRegistry struct {
	mu     sync.Mutex
	online map[string]string // handle -> display name
}

// NewPresenceRegistry constructs an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{online: make(map[string]string)}
}

// Add records a staff connection as online.
func (p *PresenceRegistry) Add(handle, displayName string) {
	if handle == "" {
		return
	}

	p.mu.Lock()
	p.online[handle] = displayName
	p.mu.Unlock()
}

// Remove takes a staff connection offline. It returns the display name that
// was registered and whether the handle was present, so disconnect cleanup
// announces an attendant's departure at most once.
func (p *PresenceRegistry) Remove(handle string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name, ok := p.online[handle]
	if ok {
		delete(p.online, handle)
	}
	return name, ok
}

// Contains reports whether a handle is currently online.
func (p *PresenceRegistry) Contains(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.online[handle]
	return ok
}

// List returns a point-in-time snapshot of online attendants, sorted by
// display name (then handle) for stable client rendering. The snapshot may
// be slightly stale relative to concurrent connects; that is acceptable.
func (p *PresenceRegistry) List() []v1.Attendant {
	p.mu.Lock()
	out := make([]v1.Attendant, 0, len(p.online))
	for handle, name := range p.online {
		out = append(out, v1.Attendant{Handle: handle, DisplayName: name})
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].Handle < out[j].Handle
	})
	return out
}

// Len returns the number of online attendant connections.
func (p *PresenceRegistry) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.online)
}

// Reset empties the registry. Test isolation only.
func (p *PresenceRegistry) Reset() {
	p.mu.Lock()
	p.online = make(map[string]string)
	p.mu.Unlock()
}
