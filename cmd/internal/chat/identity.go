package chat

import (
	"net/http"
	"strings"
)

// Role is the closed set of connection roles resolved at handshake time.
type Role string

const (
	// RoleStaff marks attendant connections (support staff and managers).
	RoleStaff Role = "staff"
	// RoleRegular marks end-user connections.
	RoleRegular Role = "regular_user"
)

// Account is the authenticated identity supplied by the external
// session/auth collaborator at handshake time. The chat core trusts it
// without re-validating credentials.
type Account struct {
	Username    string
	DisplayName string
	Staff       bool
}

// Display returns the name shown to other participants:
// the full display name when present, otherwise the username.
func (a Account) Display() string {
	if s := strings.TrimSpace(a.DisplayName); s != "" {
		return s
	}
	return a.Username
}

// Role maps the staff flag onto the closed role variant.
func (a Account) Role() Role {
	if a.Staff {
		return RoleStaff
	}
	return RoleRegular
}

// Authenticator resolves the already-authenticated account behind an
// incoming websocket upgrade request. Credential checking itself lives
// outside this subsystem.
type Authenticator interface {
	Authenticate(r *http.Request) (Account, error)
}

// NormalizeUsername performs case-insensitive canonicalization.
// Every group name and routing key is derived from the normalized form.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
