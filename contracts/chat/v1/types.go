// Package v1 defines the Chamados chat protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeMessage is a plain conversation message (regular user -> server).
	TypeMessage = "message"
	// TypeDirectMessage is a staff message addressed to one user's conversation (staff -> server).
	TypeDirectMessage = "direct_message"
	// TypeBroadcast is a staff announcement delivered to every regular user (staff -> server).
	TypeBroadcast = "broadcast"
	// TypeSelectAttendant pins the sender's conversation to one attendant connection (user -> server).
	TypeSelectAttendant = "select_attendant"
	// TypeHistoryFetch requests a window of a conversation's stored messages (client -> server).
	TypeHistoryFetch = "history_fetch"

	// TypeWelcome greets a freshly connected regular user (server -> client).
	TypeWelcome = "welcome"
	// TypeOnlineAttendants carries a snapshot of currently online attendants (server -> client).
	TypeOnlineAttendants = "online_attendants"
	// TypePresenceChanged announces an attendant going online or offline (server -> clients).
	TypePresenceChanged = "presence_changed"
	// TypeUserSelectedYou tells an attendant a user picked them (server -> attendant).
	TypeUserSelectedYou = "user_selected_you"
	// TypeChatMessage delivers an accepted conversation message (server -> clients).
	TypeChatMessage = "chat_message"
	// TypeHistoryChunk returns a window of stored messages (server -> client).
	TypeHistoryChunk = "history_chunk"
	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeMessage,
		TypeDirectMessage,
		TypeBroadcast,
		TypeSelectAttendant,
		TypeHistoryFetch,
		TypeWelcome,
		TypeOnlineAttendants,
		TypePresenceChanged,
		TypeUserSelectedYou,
		TypeChatMessage,
		TypeHistoryChunk,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Inbound payloads ----

// MessagePayload is a plain message from a regular user into their own conversation.
type MessagePayload struct {
	Text string `json:"text"`
}

// DirectMessagePayload is a staff message into one user's conversation.
// ToUsername may be omitted when the sending attendant already serves a user;
// the server then resolves the target from its routing table.
type DirectMessagePayload struct {
	Text       string `json:"text"`
	ToUsername string `json:"to_username,omitempty"`
}

// BroadcastPayload is a staff announcement for every regular user.
type BroadcastPayload struct {
	Text string `json:"text"`
}

// SelectAttendantPayload pins the sender's conversation to an attendant connection.
type SelectAttendantPayload struct {
	AttendantHandle string `json:"attendant_handle"`
}

// HistoryFetchPayload requests stored messages of a conversation.
// Regular users may only read their own conversation; staff must name one.
type HistoryFetchPayload struct {
	Username string `json:"username,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ---- Outbound payloads ----

// WelcomePayload greets a connecting regular user.
type WelcomePayload struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// Attendant describes one online staff connection.
type Attendant struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// OnlineAttendantsPayload is a point-in-time snapshot of online attendants.
type OnlineAttendantsPayload struct {
	Attendants []Attendant `json:"attendants"`
}

// PresenceChangedPayload announces one attendant connection going online or offline.
type PresenceChangedPayload struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Online      bool   `json:"online"`
}

// UserSelectedYouPayload tells an attendant that a user picked them.
type UserSelectedYouPayload struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	UserHandle  string `json:"user_handle"`
}

// ChatMessagePayload delivers one accepted conversation message.
// MessageID is generated once per logical message and reused across every
// delivery path, so clients can drop repeated receipts of the same message.
// Username identifies the conversation (always the end-user side); it is
// empty for staff announcements that target every user.
type ChatMessagePayload struct {
	MessageID         string    `json:"message_id"`
	Message           string    `json:"message"`
	FromStaff         bool      `json:"from_staff"`
	SenderDisplayName string    `json:"sender_display_name"`
	Username          string    `json:"username,omitempty"`
	NeedsAttention    bool      `json:"needs_attention"`
	SentAt            time.Time `json:"sent_at"`
}

// HistoryChunkPayload returns stored messages of one conversation, oldest first.
type HistoryChunkPayload struct {
	Username string               `json:"username"`
	Messages []ChatMessagePayload `json:"messages"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
