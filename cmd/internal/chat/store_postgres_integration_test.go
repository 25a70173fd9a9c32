package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when CHAMADOS_DATABASE_URL is set.
// This keeps local "go test ./..." fast & deterministic without requiring Postgres.

func TestPostgresStore_AppendAndHistory(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 4; i++ {
		msg, err := store.Append(ctx, AppendInput{
			Username:  "Maria",
			Text:      fmt.Sprintf("m%d", i),
			FromStaff: i%2 == 1,
			Now:       base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if msg.MessageID == "" {
			t.Fatalf("append %d: missing message id", i)
		}
		if msg.Username != "maria" {
			t.Fatalf("append %d: username=%q want normalized", i, msg.Username)
		}
	}

	res, err := store.History(ctx, HistoryInput{Username: "MARIA", Limit: 3})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(res.Messages) != 3 {
		t.Fatalf("history len=%d want 3", len(res.Messages))
	}
	// Most recent window, oldest first.
	if res.Messages[0].Text != "m1" || res.Messages[2].Text != "m3" {
		t.Fatalf("unexpected window: %+v", res.Messages)
	}
	if !res.Messages[0].FromStaff {
		t.Fatalf("from_staff not round-tripped: %+v", res.Messages[0])
	}
}

func TestPostgresStore_ConversationsAreIsolated(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := store.Append(ctx, AppendInput{Username: "maria", Text: "para maria"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ctx, AppendInput{Username: "joao", Text: "para joao"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	res, err := store.History(ctx, HistoryInput{Username: "joao"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Text != "para joao" {
		t.Fatalf("unexpected history: %+v", res.Messages)
	}
}

func TestPostgresDirectory_LookupAndList(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")
	seed := [][3]any{
		{"Maria", "Maria Silva", false},
		{"joao", "João Souza", false},
		{"carla", "Carla Mendes", true},
	}
	for _, row := range seed {
		if _, err := pool.Exec(ctx,
			`INSERT INTO `+users+` (username, display_name, is_staff) VALUES ($1, $2, $3)`,
			row[0], row[1], row[2],
		); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	dir, err := NewPostgresDirectory(pool, WithDirectorySchema(schema))
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}

	u, err := dir.Lookup(ctx, "  MARIA ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.DisplayName != "Maria Silva" || u.Staff {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := dir.Lookup(ctx, "fantasma"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("lookup unknown err=%v want ErrUserNotFound", err)
	}

	regular, err := dir.ListRegularUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(regular) != 2 {
		t.Fatalf("list len=%d want 2 (staff excluded)", len(regular))
	}
	if NormalizeUsername(regular[0].Username) != "joao" || NormalizeUsername(regular[1].Username) != "maria" {
		t.Fatalf("unexpected order: %+v", regular)
	}
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("CHAMADOS_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: CHAMADOS_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse CHAMADOS_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "chamados_it_" + strings.ToLower(id[len(id)-10:])

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	messages := pgIdent(schema, "chat_messages")
	users := pgIdent(schema, "users")

	// Minimal schema required by PostgresStore and PostgresDirectory.
	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  message_id    TEXT PRIMARY KEY,
  username_norm TEXT NOT NULL,
  body          TEXT NOT NULL,
  from_staff    BOOLEAN NOT NULL,
  sent_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation
  ON %s (username_norm, message_id);

CREATE TABLE IF NOT EXISTS %s (
  username     TEXT PRIMARY KEY,
  display_name TEXT NOT NULL DEFAULT '',
  is_staff     BOOLEAN NOT NULL DEFAULT false
);
`, messages, messages, users)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}
