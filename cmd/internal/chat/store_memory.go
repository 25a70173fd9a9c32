package chat

import (
	"context"
	"errors"
	"sync"
	"time"
)

const memMaxMessagesPerConversation = 10_000

// InMemoryStore is a dev/test fallback when no database is configured.
// Messages are kept per conversation, bounded, ordered by append time.
type InMemoryStore struct {
	mu    sync.Mutex
	convs map[string][]StoredMessage
}

// NewInMemoryStore constructs an in-memory MessageStore implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{convs: make(map[string][]StoredMessage)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Append persists a message and assigns its message id.
func (s *InMemoryStore) Append(ctx context.Context, in AppendInput) (StoredMessage, error) {
	username := NormalizeUsername(in.Username)
	if username == "" || in.Text == "" {
		return StoredMessage{}, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return StoredMessage{}, err
	}

	msg := StoredMessage{
		MessageID: id,
		Username:  username,
		Text:      in.Text,
		FromStaff: in.FromStaff,
		SentAt:    now,
	}

	s.mu.Lock()
	msgs := append(s.convs[username], msg)
	// Bound memory to avoid unbounded growth in dev.
	if len(msgs) > memMaxMessagesPerConversation {
		msgs = msgs[len(msgs)-memMaxMessagesPerConversation:]
	}
	s.convs[username] = msgs
	s.mu.Unlock()

	return msg, nil
}

// History returns the most recent messages of a conversation, oldest first.
func (s *InMemoryStore) History(ctx context.Context, in HistoryInput) (HistoryResult, error) {
	username := NormalizeUsername(in.Username)
	if username == "" {
		return HistoryResult{}, errors.New("missing username")
	}
	if err := ctx.Err(); err != nil {
		return HistoryResult{}, err
	}

	limit := clampHistoryLimit(in.Limit)

	s.mu.Lock()
	msgs := s.convs[username]
	start := len(msgs) - limit
	if start < 0 {
		start = 0
	}
	out := append([]StoredMessage(nil), msgs[start:]...)
	s.mu.Unlock()

	return HistoryResult{Messages: out}, nil
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
