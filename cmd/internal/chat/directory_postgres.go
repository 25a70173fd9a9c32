package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory resolves users via a <schema>.users table:
//
//	CREATE TABLE <schema>.users (
//	    username     text PRIMARY KEY,
//	    display_name text NOT NULL DEFAULT '',
//	    is_staff     boolean NOT NULL DEFAULT false
//	);
//
// The pgx pool is owned by the caller.
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	schema string
}

// DirectoryOption configures PostgresDirectory behavior.
type DirectoryOption func(*PostgresDirectory) error

// WithDirectorySchema sets the DB schema used by the directory (default: "chamados").
func WithDirectorySchema(schema string) DirectoryOption {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		d.schema = schema
		return nil
	}
}

// NewPostgresDirectory constructs a Postgres-backed Directory.
func NewPostgresDirectory(pool *pgxpool.Pool, opts ...DirectoryOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{
		pool:   pool,
		schema: "chamados",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return d, nil
}

// Lookup resolves a user by username, case-insensitively.
func (d *PostgresDirectory) Lookup(ctx context.Context, username string) (User, error) {
	if d == nil || d.pool == nil {
		return User{}, errors.New("chat: nil directory")
	}
	username = NormalizeUsername(username)
	if username == "" {
		return User{}, ErrUserNotFound
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(d.schema, "users")

	var u User
	err := d.pool.QueryRow(ctx,
		`SELECT username, display_name, is_staff
		   FROM `+users+`
		  WHERE lower(username) = $1`,
		username,
	).Scan(&u.Username, &u.DisplayName, &u.Staff)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ListRegularUsers returns every non-staff user, sorted by username.
func (d *PostgresDirectory) ListRegularUsers(ctx context.Context) ([]User, error) {
	if d == nil || d.pool == nil {
		return nil, errors.New("chat: nil directory")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	users := pgIdent(d.schema, "users")

	rows, err := d.pool.Query(ctx,
		`SELECT username, display_name, is_staff
		   FROM `+users+`
		  WHERE NOT is_staff
		  ORDER BY lower(username)`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Username, &u.DisplayName, &u.Staff); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
