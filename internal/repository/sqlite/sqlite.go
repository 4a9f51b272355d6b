// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed
// and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code — no C compiler needed, works
// everywhere Go works.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/sakif/identity-service/internal/auth"

	// Blank import: the driver registers itself with database/sql under
	// the name "sqlite" at init time.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements repository.UserRepository.
//
// The password service is a constructor dependency because the store owns
// the hashing-on-write rule: a plaintext password handed to Create or Save
// is hashed here, on the way in, so no code path can write a plaintext to
// disk.
type DB struct {
	conn      *sql.DB
	passwords *auth.PasswordService
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/identity.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests, lost on close)
func New(dbPath string, passwords *auth.PasswordService) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// database/sql is a connection pool. For ":memory:" each new pooled
	// connection would get its own fresh, empty database, so the pool is
	// pinned to a single connection there.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// Ping forces an immediate connection so a bad path or permissions
	// problem surfaces here rather than on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress —
	// needed for a web server where requests hit the DB in parallel.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. We need them ON so that
	// deleting a user cascades to their provider links.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn, passwords: passwords}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it safe to
// run on every start.
//
// The UNIQUE constraints are load-bearing: the service layer checks
// email/provider uniqueness with a read before writing, but two
// concurrent requests can both pass that check. The constraints make the
// database the arbiter of the race — the second writer gets a constraint
// error instead of silently duplicating an identity.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL DEFAULT '',
			name          TEXT NOT NULL DEFAULT '',
			picture       TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMP NOT NULL,
			updated_at    TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Emails are stored lowercase, so a plain UNIQUE index gives us
	// case-insensitive uniqueness. The partial index skips users with no
	// email at all (provider-only accounts where the provider hid it).
	_, err = db.conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
		ON users(email) WHERE email <> ''
	`)
	if err != nil {
		return fmt.Errorf("creating email index: %w", err)
	}

	// One link per provider per user (primary key), and one local user
	// per external identity (unique provider + provider_id).
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS provider_links (
			user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider     TEXT NOT NULL,
			provider_id  TEXT NOT NULL,
			access_token TEXT NOT NULL DEFAULT '',
			token_secret TEXT NOT NULL DEFAULT '',
			picture      TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (user_id, provider),
			UNIQUE (provider, provider_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("creating provider_links table: %w", err)
	}

	return nil
}
