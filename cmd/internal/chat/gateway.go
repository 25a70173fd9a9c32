package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	v1 "chamados/contracts/chat/v1"

	"github.com/coder/websocket"
)

const (
	wsSubprotocolV1 = "chamados.chat.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsDefaultStoreTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Origin is required by default and only localhost is allowed,
	// secure-by-default for dev.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Gateway is the websocket entrypoint of the chat core. It runs one
// connection session per accepted socket: handshake (identity + role
// resolution), inbound event dispatch, lifecycle side effects on the
// presence registry and routing table, and outbound delivery through the
// switchboard.
type Gateway struct {
	log      *slog.Logger
	sb       *Switchboard
	presence *PresenceRegistry
	routing  *RoutingTable
	store    MessageStore
	dir      Directory
	auth     Authenticator

	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks. Accept() authorizes
	// same-host origins by default; cross-origin requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	storeTimeout    time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration

	// (event type, role) -> handler. Combinations not present here are
	// dropped without failing the connection.
	handlers map[dispatchKey]eventHandler
}

type dispatchKey struct {
	typ  string
	role Role
}

type eventHandler func(ctx context.Context, c *Client, env v1.Envelope)

// NewGateway constructs a gateway with secure defaults. Nil collaborators
// fall back to in-memory implementations for dev, except auth, which has no
// safe fallback: without an Authenticator every handshake is rejected.
func NewGateway(
	log *slog.Logger,
	sb *Switchboard,
	presence *PresenceRegistry,
	routing *RoutingTable,
	store MessageStore,
	dir Directory,
	auth Authenticator,
) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if sb == nil {
		sb = NewSwitchboard(log)
	}
	if presence == nil {
		presence = NewPresenceRegistry()
	}
	if routing == nil {
		routing = NewRoutingTable()
	}
	if store == nil {
		store = NewInMemoryStore()
	}
	if dir == nil {
		dir = NewInMemoryDirectory()
	}

	g := &Gateway{
		log:      log,
		sb:       sb,
		presence: presence,
		routing:  routing,
		store:    store,
		dir:      dir,
		auth:     auth,
	}

	g.originRequired = envBool("CHAMADOS_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSV("CHAMADOS_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = originPatternsFrom(g.allowedOrigins)

	g.writeTimeout = envDuration("CHAMADOS_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDuration("CHAMADOS_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)
	g.storeTimeout = envDuration("CHAMADOS_WS_STORE_TIMEOUT", wsDefaultStoreTimeout)

	g.sendQueueSize = envInt("CHAMADOS_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDuration("CHAMADOS_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDuration("CHAMADOS_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envInt("CHAMADOS_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDuration("CHAMADOS_WS_RATE_WINDOW", rateLimitWindow)

	g.handlers = map[dispatchKey]eventHandler{
		{v1.TypeMessage, RoleRegular}:         g.onUserMessage,
		{v1.TypeDirectMessage, RoleStaff}:     g.onDirectMessage,
		{v1.TypeBroadcast, RoleStaff}:         g.onBroadcast,
		{v1.TypeSelectAttendant, RoleRegular}: g.onSelectAttendant,
		{v1.TypeHistoryFetch, RoleRegular}:    g.onHistoryFetch,
		{v1.TypeHistoryFetch, RoleStaff}:      g.onHistoryFetch,
	}

	return g
}

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a websocket session and runs the
// chat loop. The request path must carry the conversation username as its
// last segment (route pattern "/ws/chat/{username}"); staff conventionally
// connect with the segment "admins".
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if g.auth == nil {
		g.log.Error("ws.reject.no_authenticator")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	acct, err := g.auth.Authenticate(r)
	if err != nil {
		g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conversation := NormalizeUsername(r.PathValue("username"))
	if acct.Role() == RoleRegular && conversation != NormalizeUsername(acct.Username) {
		// A regular user may only open their own conversation.
		g.log.Info("ws.reject.conversation", "requested", conversation, "account", NormalizeUsername(acct.Username))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocolV1},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	handle, err := NewHandle(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.handle.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "no handle")
		return
	}
	client := NewClient(handle, acct, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// shutdown is idempotent and runs the full disconnect cleanup exactly
	// once on every exit path: error, client close, or server shutdown.
	// It does NOT close client.Send; membership removal happens before
	// client.Close so concurrent fanout stays safe.
	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			if name, ok := g.presence.Remove(handle); ok {
				metricOnlineAttendants.Dec()
				g.announcePresence(handle, name, false)
			}
			g.sb.Unregister(handle)
			metricConnections.WithLabelValues(string(client.Role)).Dec()
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
			g.log.Info("ws.session.closed", "handle", handle, "role", client.Role, "reason", reason)
		})
	}

	g.open(client)

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "handle", handle, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "handle", handle, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				// Malformed payloads are dropped; the connection stays open.
				g.log.Debug("chat.dispatch.bad_json", "handle", handle)
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "handle", handle, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.log.Debug("chat.dispatch.invalid", "handle", handle, "err", err)
			continue readLoop
		}

		h, ok := g.handlers[dispatchKey{typ: env.Type, role: client.Role}]
		if !ok {
			g.log.Debug("chat.dispatch.drop", "handle", handle, "type", env.Type, "role", client.Role)
			continue readLoop
		}
		h(ctx, client, env)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// open registers the freshly handshaken connection and performs the role's
// connect side effects.
func (g *Gateway) open(c *Client) {
	g.sb.Register(c)
	g.sb.JoinGroup(GroupAll, c)
	metricConnections.WithLabelValues(string(c.Role)).Inc()

	if c.Role == RoleStaff {
		g.sb.JoinGroup(GroupStaff, c)
		g.presence.Add(c.Handle, c.DisplayName)
		metricOnlineAttendants.Inc()
		g.announcePresence(c.Handle, c.DisplayName, true)
		g.log.Info("chat.attendant.online", "handle", c.Handle, "display_name", c.DisplayName)
		return
	}

	g.sb.JoinGroup(UserGroup(c.Username), c)
	g.log.Info("chat.user.online", "handle", c.Handle, "username", c.Username)

	now := time.Now().UTC()
	welcome := v1.WelcomePayload{
		Message: welcomeText(c.DisplayName),
		Sender:  welcomeSender,
	}
	_ = g.enqueue(context.Background(), c, newEnvelope(v1.TypeWelcome, welcome, now))

	// Presence snapshot taken without coordination with concurrent
	// connects; a few milliseconds of staleness is acceptable.
	snapshot := v1.OnlineAttendantsPayload{Attendants: g.presence.List()}
	_ = g.enqueue(context.Background(), c, newEnvelope(v1.TypeOnlineAttendants, snapshot, now))
}

func (g *Gateway) announcePresence(handle, displayName string, online bool) {
	env := newEnvelope(v1.TypePresenceChanged, v1.PresenceChangedPayload{
		Handle:      handle,
		DisplayName: displayName,
		Online:      online,
	}, time.Now().UTC())

	g.sb.SendToGroup(GroupStaff, env)
	g.sb.SendToGroup(GroupAll, env)
}

// ---- send helpers ----

func (g *Gateway) trySendError(ctx context.Context, c *Client, code, msg string) {
	env := newEnvelope(v1.TypeError, v1.ErrorPayload{Code: code, Message: msg}, time.Now().UTC())
	_ = g.enqueue(ctx, c, env)
}

func (g *Gateway) enqueue(ctx context.Context, c *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.Done():
		return false
	case c.Send <- env:
		return true
	default:
		metricDroppedDeliveries.Inc()
		return false
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload any, now time.Time) v1.Envelope {
	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte("{}")
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      stampID(now),
		TS:      now,
		Payload: b,
	}
}

// stampID returns a non-empty delivery id. Ids exist for client-side dedup
// and must never be empty; a nanosecond timestamp still tells deliveries
// apart when the entropy source fails.
func stampID(now time.Time) string {
	id, err := NewULID(now)
	if err != nil {
		return strconv.FormatInt(now.UnixNano(), 36)
	}
	return id
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return readErrBadJSON
	}
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// originPatternsFrom extracts the host patterns websocket.Accept matches
// cross-origin requests against. Only hosts from the allowlist are accepted.
func originPatternsFrom(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
