// Package main provides a CI-friendly WebSocket smoke test for Chamados chat.
//
// It validates:
//   - handshake + subprotocol selection for user and attendant
//   - welcome + online_attendants on user connect
//   - user message -> staff delivery with needs_attention + user echo (same id)
//   - select_attendant -> user_selected_you
//   - staff direct_message -> user delivery
//   - history fetch
//
// The target server must run with CHAMADOS_DEV_QUERY_AUTH=true so identities
// can be supplied via query parameters.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "chamados/contracts/chat/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "chamados.chat.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL   = flag.String("url", "ws://127.0.0.1:8080", "WebSocket base URL")
		origin    = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		user      = flag.String("user", "maria", "Regular user username")
		userName  = flag.String("name", "Maria Silva", "Regular user display name")
		staffUser = flag.String("staff-user", "carla", "Attendant username")
		staffName = flag.String("staff-name", "Carla Mendes", "Attendant display name")
		text      = flag.String("text", "olá, preciso de ajuda 👋", "Message text to send")
		timeout   = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose   = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	staff := mustConnect(root, "staff", chatURL(*baseURL, "admins", *staffUser, *staffName, true), *origin, *timeout)
	defer closeWS(staff.conn)

	u := mustConnect(root, "user", chatURL(*baseURL, *user, *user, *userName, false), *origin, *timeout)
	defer closeWS(u.conn)

	welcome := u.mustReadUntilType(root, v1.TypeWelcome, *timeout, nil)
	var wp v1.WelcomePayload
	mustUnmarshal(welcome.Payload, &wp, "welcome")
	if strings.TrimSpace(wp.Message) == "" || strings.TrimSpace(wp.Sender) == "" {
		fatalf("welcome payload incomplete: %+v", wp)
	}

	snapEnv := u.mustReadUntilType(root, v1.TypeOnlineAttendants, *timeout, nil)
	var snap v1.OnlineAttendantsPayload
	mustUnmarshal(snapEnv.Payload, &snap, "online_attendants")
	attendantHandle := ""
	for _, a := range snap.Attendants {
		if a.DisplayName == *staffName {
			attendantHandle = a.Handle
		}
	}
	if attendantHandle == "" {
		fatalf("attendant %q missing from snapshot: %+v", *staffName, snap.Attendants)
	}

	if *verbose {
		fmt.Printf("connected: user=%s attendant_handle=%s origin=%q\n", *user, attendantHandle, *origin)
	}

	// User message: staff copy flagged, user echo unflagged, one id.
	mustSend(root, u, v1.TypeMessage, v1.MessagePayload{Text: *text}, *timeout)

	staffMsg := mustChatMessage(root, staff, *timeout)
	if !staffMsg.NeedsAttention {
		fatalf("staff delivery missing needs_attention: %+v", staffMsg)
	}
	if staffMsg.Message != *text {
		fatalf("staff delivery text mismatch: got=%q want=%q", staffMsg.Message, *text)
	}

	echo := mustChatMessage(root, u, *timeout)
	if echo.NeedsAttention {
		fatalf("user echo must not carry needs_attention: %+v", echo)
	}
	if echo.MessageID != staffMsg.MessageID {
		fatalf("message id mismatch: echo=%q staff=%q", echo.MessageID, staffMsg.MessageID)
	}

	// Selection pins the conversation.
	mustSend(root, u, v1.TypeSelectAttendant, v1.SelectAttendantPayload{AttendantHandle: attendantHandle}, *timeout)

	selEnv := staff.mustReadUntilType(root, v1.TypeUserSelectedYou, *timeout, nil)
	var sel v1.UserSelectedYouPayload
	mustUnmarshal(selEnv.Payload, &sel, "user_selected_you")
	if !strings.EqualFold(sel.Username, *user) {
		fatalf("selection username mismatch: got=%q want=%q", sel.Username, *user)
	}

	// Staff reply reaches the user's conversation.
	reply := "em que posso ajudar?"
	mustSend(root, staff, v1.TypeDirectMessage, v1.DirectMessagePayload{Text: reply, ToUsername: *user}, *timeout)

	userGot := mustChatMessage(root, u, *timeout)
	if !userGot.FromStaff || userGot.Message != reply {
		fatalf("direct delivery mismatch: %+v", userGot)
	}

	// History contains both sides.
	mustSend(root, u, v1.TypeHistoryFetch, v1.HistoryFetchPayload{Limit: 50}, *timeout)
	chunkEnv := u.mustReadUntilType(root, v1.TypeHistoryChunk, *timeout, skipSet(v1.TypeChatMessage))
	var chunk v1.HistoryChunkPayload
	mustUnmarshal(chunkEnv.Payload, &chunk, "history_chunk")

	foundUser, foundStaff := false, false
	for _, m := range chunk.Messages {
		if m.Message == *text && !m.FromStaff {
			foundUser = true
		}
		if m.Message == reply && m.FromStaff {
			foundStaff = true
		}
	}
	if !foundUser || !foundStaff {
		fatalf("history incomplete: user=%v staff=%v (%d messages)", foundUser, foundStaff, len(chunk.Messages))
	}

	fmt.Printf("OK: user=%s attendant=%s message_id=%s history=%d\n", *user, *staffUser, staffMsg.MessageID, len(chunk.Messages))
}

func chatURL(base, conversation, username, displayName string, staff bool) string {
	q := url.Values{}
	q.Set("user", username)
	q.Set("name", displayName)
	if staff {
		q.Set("staff", "true")
	}
	return strings.TrimRight(base, "/") + "/ws/chat/" + url.PathEscape(conversation) + "?" + q.Encode()
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustSend(parent context.Context, c *smokeClient, typ string, payload any, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      fmt.Sprintf("%s-%s-%d", c.name, typ, time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: mustJSON(payload),
	}

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write %s (%s): %v", typ, c.name, err)
	}
}

func mustChatMessage(parent context.Context, c *smokeClient, stepTimeout time.Duration) v1.ChatMessagePayload {
	env := c.mustReadUntilType(parent, v1.TypeChatMessage, stepTimeout, skipSet(v1.TypePresenceChanged, v1.TypeOnlineAttendants))

	var p v1.ChatMessagePayload
	mustUnmarshal(env.Payload, &p, "chat_message")
	if strings.TrimSpace(p.MessageID) == "" {
		fatalf("chat_message missing message_id (%s)", c.name)
	}
	if p.SentAt.IsZero() {
		fatalf("chat_message missing sent_at (%s)", c.name)
	}
	return p
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			// Presence chatter may arrive at any point; tolerate it everywhere.
			if env.Type == v1.TypePresenceChanged {
				continue
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func skipSet(types ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(types))
	for _, t := range types {
		out[t] = struct{}{}
	}
	return out
}

func mustUnmarshal(raw json.RawMessage, dst any, what string) {
	if err := json.Unmarshal(raw, dst); err != nil {
		fatalf("unmarshal %s payload: %v", what, err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
