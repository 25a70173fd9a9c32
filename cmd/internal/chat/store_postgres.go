// Package chat contains the Chamados realtime chat core: the websocket
// gateway, the broadcast switchboard, attendant presence, conversation
// routing, and message persistence primitives.
package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// Expected table (schema management is external):
//
//	CREATE TABLE <schema>.chat_messages (
//	    message_id    text PRIMARY KEY,
//	    username_norm text NOT NULL,
//	    body          text NOT NULL,
//	    from_staff    boolean NOT NULL,
//	    sent_at       timestamptz NOT NULL
//	);
//	CREATE INDEX ON <schema>.chat_messages (username_norm, message_id);
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "chamados").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed MessageStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "chamados",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Append persists a message and assigns its message id.
func (s *PostgresStore) Append(ctx context.Context, in AppendInput) (StoredMessage, error) {
	if s == nil || s.pool == nil {
		return StoredMessage{}, errors.New("chat: nil store")
	}
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

	messages := pgIdent(s.schema, "chat_messages")

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (message_id, username_norm, body, from_staff, sent_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, username, in.Text, in.FromStaff, now,
	); err != nil {
		return StoredMessage{}, fmt.Errorf("insert message: %w", err)
	}

	return StoredMessage{
		MessageID: id,
		Username:  username,
		Text:      in.Text,
		FromStaff: in.FromStaff,
		SentAt:    now,
	}, nil
}

// History returns the most recent messages of a conversation, oldest first.
// Message ids are ULIDs, so ordering by message_id is append order.
func (s *PostgresStore) History(ctx context.Context, in HistoryInput) (HistoryResult, error) {
	if s == nil || s.pool == nil {
		return HistoryResult{}, errors.New("chat: nil store")
	}
	username := NormalizeUsername(in.Username)
	if username == "" {
		return HistoryResult{}, errors.New("missing username")
	}
	if err := ctx.Err(); err != nil {
		return HistoryResult{}, err
	}

	limit := clampHistoryLimit(in.Limit)
	messages := pgIdent(s.schema, "chat_messages")

	rows, err := s.pool.Query(ctx,
		`SELECT message_id, username_norm, body, from_staff, sent_at
		   FROM `+messages+`
		  WHERE username_norm = $1
		  ORDER BY message_id DESC
		  LIMIT $2`,
		username, limit,
	)
	if err != nil {
		return HistoryResult{}, err
	}
	defer rows.Close()

	msgs := make([]StoredMessage, 0, limit)
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.MessageID, &m.Username, &m.Text, &m.FromStaff, &m.SentAt); err != nil {
			return HistoryResult{}, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return HistoryResult{}, err
	}

	// Query walks newest-first for the LIMIT; callers want oldest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return HistoryResult{Messages: msgs}, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
