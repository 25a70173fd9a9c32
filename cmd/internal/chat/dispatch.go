package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	v1 "chamados/contracts/chat/v1"
)

const welcomeSender = "Sistema"

func welcomeText(displayName string) string {
	return fmt.Sprintf(
		"🔄 Olá, %s! 😃\n\n"+
			"Como está seu dia hoje? Aguarda só um pouquinho que já vamos te atender.\n\n"+
			"Para agilizar seu atendimento, poderia nos contar resumidamente o motivo do seu contato? 🚀",
		displayName,
	)
}

// onUserMessage handles a plain message from a regular user: persist first,
// then deliver to the pinned attendant when one is live, otherwise broadcast
// to the whole staff group, and always echo back to the sender's own group.
func (g *Gateway) onUserMessage(ctx context.Context, c *Client, env v1.Envelope) {
	var p v1.MessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.log.Debug("chat.message.bad_payload", "handle", c.Handle, "err", err)
		return
	}
	text, ok := acceptText(p.Text)
	if !ok {
		g.log.Debug("chat.message.rejected_text", "handle", c.Handle)
		return
	}

	now := time.Now().UTC()
	stored, err := g.append(ctx, AppendInput{
		Username:  c.Username,
		Text:      text,
		FromStaff: false,
		Now:       now,
	})
	if err != nil {
		metricStoreFailures.Inc()
		g.log.Error("chat.store.fail", "handle", c.Handle, "username", c.Username, "err", err)
		g.trySendError(ctx, c, "store_failed", "message not recorded, not delivered")
		return
	}
	metricMessages.WithLabelValues("user").Inc()

	payload := v1.ChatMessagePayload{
		MessageID:         stored.MessageID,
		Message:           stored.Text,
		FromStaff:         false,
		SenderDisplayName: c.DisplayName,
		Username:          c.Username,
		SentAt:            stored.SentAt,
	}

	// Point-to-point when the pinned attendant is still online, otherwise
	// any available staff member can pick the conversation up.
	toStaff := payload
	toStaff.NeedsAttention = true

	delivered := false
	if handle, bound := g.routing.AttendantFor(c.Username); bound && g.presence.Contains(handle) {
		if g.sb.SendToConnection(handle, newEnvelope(v1.TypeChatMessage, toStaff, now)) {
			g.routing.BindAttendantToUser(handle, c.Username)
			delivered = true
		}
	}
	if !delivered {
		g.sb.SendToGroup(GroupStaff, newEnvelope(v1.TypeChatMessage, toStaff, now))
		g.log.Debug("chat.deliver.fallback", "username", c.Username, "message_id", stored.MessageID)
	}

	// Echo to the sender's own group, without the attention flag, so other
	// open tabs of the same user render the message. Same message id.
	g.sb.SendToGroup(UserGroup(c.Username), newEnvelope(v1.TypeChatMessage, payload, now))
}

// onDirectMessage handles a staff message into one user's conversation.
// The target is the explicit to_username or, failing that, the user this
// attendant connection most recently served.
func (g *Gateway) onDirectMessage(ctx context.Context, c *Client, env v1.Envelope) {
	var p v1.DirectMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.log.Debug("chat.direct.bad_payload", "handle", c.Handle, "err", err)
		return
	}
	text, ok := acceptText(p.Text)
	if !ok {
		g.log.Debug("chat.direct.rejected_text", "handle", c.Handle)
		return
	}

	target := NormalizeUsername(p.ToUsername)
	if target == "" {
		target, _ = g.routing.UserFor(c.Handle)
	}
	if target == "" {
		g.log.Info("chat.direct.no_target", "handle", c.Handle)
		return
	}

	u, err := g.dir.Lookup(ctx, target)
	if errors.Is(err, ErrUserNotFound) {
		g.log.Warn("chat.direct.unknown_user", "handle", c.Handle, "username", target)
		return
	}
	if err != nil {
		g.log.Error("chat.directory.fail", "handle", c.Handle, "err", err)
		g.trySendError(ctx, c, "directory_failed", "could not resolve recipient")
		return
	}
	target = NormalizeUsername(u.Username)

	now := time.Now().UTC()
	stored, err := g.append(ctx, AppendInput{
		Username:  target,
		Text:      text,
		FromStaff: true,
		Now:       now,
	})
	if err != nil {
		metricStoreFailures.Inc()
		g.log.Error("chat.store.fail", "handle", c.Handle, "username", target, "err", err)
		g.trySendError(ctx, c, "store_failed", "message not recorded, not delivered")
		return
	}
	metricMessages.WithLabelValues("staff").Inc()

	payload := v1.ChatMessagePayload{
		MessageID:         stored.MessageID,
		Message:           stored.Text,
		FromStaff:         true,
		SenderDisplayName: c.DisplayName,
		Username:          target,
		SentAt:            stored.SentAt,
	}
	out := newEnvelope(v1.TypeChatMessage, payload, now)

	g.sb.SendToGroup(UserGroup(target), out)

	// Echo to the sending connection only. A directly routed message is not
	// re-announced to the staff group.
	g.sb.SendToConnection(c.Handle, out)

	// Replying pins this attendant as the user's attendant going forward.
	g.routing.BindUserToAttendant(target, c.Handle)
	g.routing.BindAttendantToUser(c.Handle, target)
}

// onBroadcast handles a staff announcement for every regular user. Each
// recipient gets their own persisted copy; a broadcast never creates or
// updates conversation bindings.
func (g *Gateway) onBroadcast(ctx context.Context, c *Client, env v1.Envelope) {
	var p v1.BroadcastPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.log.Debug("chat.broadcast.bad_payload", "handle", c.Handle, "err", err)
		return
	}
	text, ok := acceptText(p.Text)
	if !ok {
		g.log.Debug("chat.broadcast.rejected_text", "handle", c.Handle)
		return
	}

	users, err := g.dir.ListRegularUsers(ctx)
	if err != nil {
		g.log.Error("chat.directory.fail", "handle", c.Handle, "err", err)
		g.trySendError(ctx, c, "directory_failed", "could not enumerate recipients")
		return
	}

	now := time.Now().UTC()
	sent := 0
	for _, u := range users {
		stored, err := g.append(ctx, AppendInput{
			Username:  u.Username,
			Text:      text,
			FromStaff: true,
			Now:       now,
		})
		if err != nil {
			metricStoreFailures.Inc()
			g.log.Error("chat.store.fail", "handle", c.Handle, "username", u.Username, "err", err)
			continue
		}

		payload := v1.ChatMessagePayload{
			MessageID:         stored.MessageID,
			Message:           stored.Text,
			FromStaff:         true,
			SenderDisplayName: c.DisplayName,
			Username:          stored.Username,
			SentAt:            stored.SentAt,
		}
		g.sb.SendToGroup(UserGroup(u.Username), newEnvelope(v1.TypeChatMessage, payload, now))
		sent++
	}
	metricMessages.WithLabelValues("staff").Inc()

	// One copy to the staff group so every attendant sees the announcement
	// went out. Not persisted; its id is independent.
	staffCopy := v1.ChatMessagePayload{
		MessageID:         stampID(now),
		Message:           text,
		FromStaff:         true,
		SenderDisplayName: c.DisplayName,
		SentAt:            now,
	}
	g.sb.SendToGroup(GroupStaff, newEnvelope(v1.TypeChatMessage, staffCopy, now))

	g.log.Info("chat.broadcast.sent", "handle", c.Handle, "recipients", sent)
}

// onSelectAttendant pins the sender's conversation to a live attendant
// connection. A handle that is no longer online means the user's candidate
// list was stale; the event is dropped without an error.
func (g *Gateway) onSelectAttendant(_ context.Context, c *Client, env v1.Envelope) {
	var p v1.SelectAttendantPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.log.Debug("chat.select.bad_payload", "handle", c.Handle, "err", err)
		return
	}

	attendant := strings.TrimSpace(p.AttendantHandle)
	if attendant == "" || !g.presence.Contains(attendant) {
		g.log.Debug("chat.select.stale", "handle", c.Handle, "attendant", attendant)
		return
	}

	g.routing.BindUserToAttendant(c.Username, attendant)

	note := v1.UserSelectedYouPayload{
		Username:    c.Username,
		DisplayName: c.DisplayName,
		UserHandle:  c.Handle,
	}
	g.sb.SendToConnection(attendant, newEnvelope(v1.TypeUserSelectedYou, note, time.Now().UTC()))

	g.log.Info("chat.select", "username", c.Username, "attendant", attendant)
}

// onHistoryFetch returns a window of one conversation's stored messages to
// the requesting connection. Regular users read their own conversation;
// staff must name one.
func (g *Gateway) onHistoryFetch(ctx context.Context, c *Client, env v1.Envelope) {
	var p v1.HistoryFetchPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.log.Debug("chat.history.bad_payload", "handle", c.Handle, "err", err)
		return
	}

	username := c.Username
	if c.Role == RoleStaff {
		username = NormalizeUsername(p.Username)
		if username == "" {
			g.log.Debug("chat.history.no_target", "handle", c.Handle)
			return
		}
	} else if p.Username != "" && NormalizeUsername(p.Username) != c.Username {
		g.log.Debug("chat.history.denied", "handle", c.Handle, "requested", p.Username)
		return
	}

	res, err := g.store.History(ctx, HistoryInput{Username: username, Limit: p.Limit})
	if err != nil {
		g.log.Error("chat.history.fail", "handle", c.Handle, "username", username, "err", err)
		g.trySendError(ctx, c, "history_failed", "could not load history")
		return
	}

	msgs := make([]v1.ChatMessagePayload, 0, len(res.Messages))
	for _, m := range res.Messages {
		msgs = append(msgs, v1.ChatMessagePayload{
			MessageID: m.MessageID,
			Message:   m.Text,
			FromStaff: m.FromStaff,
			Username:  m.Username,
			SentAt:    m.SentAt,
		})
	}

	chunk := v1.HistoryChunkPayload{Username: username, Messages: msgs}
	_ = g.enqueue(ctx, c, newEnvelope(v1.TypeHistoryChunk, chunk, time.Now().UTC()))
}

// append persists a message on a context detached from the connection's
// cancellation: closing the socket never aborts an in-flight append, only
// the store timeout does.
func (g *Gateway) append(ctx context.Context, in AppendInput) (StoredMessage, error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.storeTimeout)
	defer cancel()

	return g.store.Append(pctx, in)
}

// acceptText trims and bounds inbound message text.
func acceptText(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len([]rune(s)) > maxMessageChars {
		return "", false
	}
	return s, true
}
