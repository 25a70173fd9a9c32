package app

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"chamados/cmd/internal/chat"
)

// Identity headers injected by the fronting reverse proxy after it has
// validated the web session. The chat core never sees credentials.
const (
	headerUser  = "X-Chamados-User"
	headerName  = "X-Chamados-Name"
	headerStaff = "X-Chamados-Staff"
)

var errNoIdentity = errors.New("app: no identity on request")

// TrustedHeaderAuthenticator resolves the account from proxy-injected
// identity headers. With DevQueryAuth enabled it also accepts
// ?user=&name=&staff= query parameters, which is how the smoke tool and
// local browsers connect without a proxy in front.
type TrustedHeaderAuthenticator struct {
	devQueryAuth bool

	// Dev-only sink so query-authenticated users become visible to
	// directory lookups (direct messages, broadcasts). Nil in DB mode.
	record *chat.InMemoryDirectory
}

// NewTrustedHeaderAuthenticator builds the authenticator. record may be nil.
func NewTrustedHeaderAuthenticator(devQueryAuth bool, record *chat.InMemoryDirectory) *TrustedHeaderAuthenticator {
	return &TrustedHeaderAuthenticator{
		devQueryAuth: devQueryAuth,
		record:       record,
	}
}

// Authenticate implements chat.Authenticator.
func (a *TrustedHeaderAuthenticator) Authenticate(r *http.Request) (chat.Account, error) {
	acct, err := a.fromHeaders(r)
	if errors.Is(err, errNoIdentity) && a.devQueryAuth {
		acct, err = a.fromQuery(r)
	}
	if err != nil {
		return chat.Account{}, err
	}

	if a.record != nil {
		a.record.Add(chat.User{
			Username:    acct.Username,
			DisplayName: acct.DisplayName,
			Staff:       acct.Staff,
		})
	}
	return acct, nil
}

func (a *TrustedHeaderAuthenticator) fromHeaders(r *http.Request) (chat.Account, error) {
	username := strings.TrimSpace(r.Header.Get(headerUser))
	if username == "" {
		return chat.Account{}, errNoIdentity
	}

	staff, _ := strconv.ParseBool(strings.TrimSpace(r.Header.Get(headerStaff)))

	return chat.Account{
		Username:    username,
		DisplayName: strings.TrimSpace(r.Header.Get(headerName)),
		Staff:       staff,
	}, nil
}

func (a *TrustedHeaderAuthenticator) fromQuery(r *http.Request) (chat.Account, error) {
	q := r.URL.Query()

	username := strings.TrimSpace(q.Get("user"))
	if username == "" {
		return chat.Account{}, errNoIdentity
	}

	staff, _ := strconv.ParseBool(strings.TrimSpace(q.Get("staff")))

	return chat.Account{
		Username:    username,
		DisplayName: strings.TrimSpace(q.Get("name")),
		Staff:       staff,
	}, nil
}
