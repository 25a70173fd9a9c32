package chat

import (
	"context"
	"time"
)

// StoredMessage is the canonical persisted message representation.
// Username always names the end-user side of the conversation, never the
// staff member; FromStaff records which side sent it.
type StoredMessage struct {
	MessageID string
	Username  string
	Text      string
	FromStaff bool
	SentAt    time.Time
}

// MessageStore is the durable append-only log of chat messages.
//
// Requirements:
//   - Append assigns exactly one message id per logical message; that id is
//     reused across every delivery path so clients can deduplicate.
//   - History returns messages of one conversation ordered oldest first.
type MessageStore interface {
	Append(ctx context.Context, in AppendInput) (StoredMessage, error)
	History(ctx context.Context, in HistoryInput) (HistoryResult, error)
	Close() error
}

// AppendInput describes a message append request.
type AppendInput struct {
	Username  string
	Text      string
	FromStaff bool
	Now       time.Time
}

// HistoryInput describes a history query for one user's conversation.
type HistoryInput struct {
	Username string
	Limit    int
}

// HistoryResult contains the retrieved window, oldest first.
type HistoryResult struct {
	Messages []StoredMessage
}
