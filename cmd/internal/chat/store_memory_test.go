package chat

import (
	"testing"
	"time"
)

func TestInMemoryStore_AppendAssignsID(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()

	msg, err := s.Append(t.Context(), AppendInput{Username: " Maria ", Text: "oi", Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if msg.MessageID == "" {
		t.Fatal("MessageID must be assigned")
	}
	if msg.Username != "maria" {
		t.Fatalf("Username=%q want normalized maria", msg.Username)
	}
}

func TestInMemoryStore_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()

	if _, err := s.Append(t.Context(), AppendInput{Username: "", Text: "oi"}); err == nil {
		t.Fatal("empty username must fail")
	}
	if _, err := s.Append(t.Context(), AppendInput{Username: "maria", Text: ""}); err == nil {
		t.Fatal("empty text must fail")
	}
}

func TestInMemoryStore_HistoryOrderAndLimit(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		if _, err := s.Append(t.Context(), AppendInput{
			Username: "maria",
			Text:     string(rune('a' + i)),
			Now:      base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	res, err := s.History(t.Context(), HistoryInput{Username: "MARIA", Limit: 3})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(res.Messages) != 3 {
		t.Fatalf("len=%d want 3", len(res.Messages))
	}
	// Most recent window, oldest first.
	if res.Messages[0].Text != "c" || res.Messages[2].Text != "e" {
		t.Fatalf("unexpected window: %+v", res.Messages)
	}
}

func TestInMemoryStore_ConversationsAreIsolated(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()

	if _, err := s.Append(t.Context(), AppendInput{Username: "maria", Text: "para maria"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := s.Append(t.Context(), AppendInput{Username: "joao", Text: "para joao"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	res, err := s.History(t.Context(), HistoryInput{Username: "joao"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Text != "para joao" {
		t.Fatalf("unexpected history: %+v", res.Messages)
	}
}

func TestClampHistoryLimit(t *testing.T) {
	t.Parallel()

	if got := clampHistoryLimit(0); got != defaultHistoryLimit {
		t.Fatalf("clamp(0)=%d want default", got)
	}
	if got := clampHistoryLimit(-5); got != defaultHistoryLimit {
		t.Fatalf("clamp(-5)=%d want default", got)
	}
	if got := clampHistoryLimit(maxHistoryLimit + 1); got != maxHistoryLimit {
		t.Fatalf("clamp(max+1)=%d want max", got)
	}
	if got := clampHistoryLimit(7); got != 7 {
		t.Fatalf("clamp(7)=%d", got)
	}
}
