package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrUserNotFound is returned by Directory lookups for unknown usernames.
var ErrUserNotFound = errors.New("chat: user not found")

// User is the directory record the chat core needs about an account.
type User struct {
	Username    string
	DisplayName string
	Staff       bool
}

// Display returns the user's display name, falling back to the username.
func (u User) Display() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Directory is the external user-lookup collaborator. The chat core uses it
// only to validate direct-message targets and to enumerate broadcast
// recipients; account management itself lives elsewhere.
type Directory interface {
	// Lookup resolves a user by username, case-insensitively.
	Lookup(ctx context.Context, username string) (User, error)
	// ListRegularUsers returns every non-staff user.
	ListRegularUsers(ctx context.Context) ([]User, error)
}

// InMemoryDirectory is a seedable Directory for dev and tests.
type InMemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User // normalized username -> user
}

// NewInMemoryDirectory constructs an empty directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{users: make(map[string]User)}
}

// Add inserts or replaces a user record.
func (d *InMemoryDirectory) Add(u User) {
	key := NormalizeUsername(u.Username)
	if key == "" {
		return
	}

	d.mu.Lock()
	d.users[key] = u
	d.mu.Unlock()
}

// Lookup resolves a user by username, case-insensitively.
func (d *InMemoryDirectory) Lookup(_ context.Context, username string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[NormalizeUsername(username)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// ListRegularUsers returns every non-staff user, sorted by username.
func (d *InMemoryDirectory) ListRegularUsers(_ context.Context) ([]User, error) {
	d.mu.RLock()
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		if !u.Staff {
			out = append(out, u)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return NormalizeUsername(out[i].Username) < NormalizeUsername(out[j].Username)
	})
	return out, nil
}
