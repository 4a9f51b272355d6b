package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/identity-service/internal/apperror"
	"github.com/sakif/identity-service/internal/model"
	"github.com/sakif/identity-service/internal/repository"
)

// compile-time checks that *DB implements both the repository interface
// and the store interface the User entity delegates to
var (
	_ repository.UserRepository = (*DB)(nil)
	_ model.Store               = (*DB)(nil)
)

// normalizeEmail lowercases and trims an email so uniqueness and lookups
// are case-insensitive. Applied on every write and every lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// mapConstraintErr translates SQLite UNIQUE violations into the
// application's validation errors. Anything else passes through.
func mapConstraintErr(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "users.email"), strings.Contains(msg, "idx_users_email"):
		return apperror.ValidationFailed("email", "email is already registered")
	case strings.Contains(msg, "provider_links"):
		return apperror.ValidationFailed("provider", "provider identity is already linked to another account")
	}
	return apperror.ValidationFailed("", "uniqueness constraint violated")
}

// Create inserts a new user together with their provider links, in one
// transaction. A plaintext password is hashed before the insert — the
// stored password_hash never holds the plaintext.
func (db *DB) Create(ctx context.Context, user *model.User) (*model.User, error) {
	if user.Password != "" {
		hash, err := db.passwords.Hash(user.Password)
		if err != nil {
			// Hashing failure is fatal: propagate, never write anything.
			return nil, fmt.Errorf("sqlite: creating user: %w", err)
		}
		user.Password = hash
	}

	if user.ID == "" {
		user.ID = xid.New().String()
	}
	user.Email = normalizeEmail(user.Email)
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, picture, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.Picture, user.Password, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting user: %w", mapConstraintErr(err))
	}

	if err := insertLinks(ctx, tx, user); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing user insert: %w", err)
	}

	user.Attach(db)
	return user, nil
}

// Save persists changes to an existing user. With no ID set it delegates
// to Create (the record has never been stored).
//
// PASSWORD CHANGE DETECTION:
// The password field is re-hashed only when it is present AND differs from
// the value captured when the user was loaded. An untouched field already
// holds the hash from storage — re-hashing it would hash the hash and lock
// the user out. model.User.PasswordChanged carries that bookkeeping.
func (db *DB) Save(ctx context.Context, user *model.User) (*model.User, error) {
	if user.ID == "" {
		return db.Create(ctx, user)
	}

	if user.PasswordChanged() {
		hash, err := db.passwords.Hash(user.Password)
		if err != nil {
			return nil, fmt.Errorf("sqlite: saving user %s: %w", user.ID, err)
		}
		user.Password = hash
	}

	user.Email = normalizeEmail(user.Email)
	user.UpdatedAt = time.Now().UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET email = ?, name = ?, picture = ?, password_hash = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email, user.Name, user.Picture, user.Password, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating user %s: %w", user.ID, mapConstraintErr(err))
	}

	// Zero rows matched means the record vanished between load and save —
	// a concurrent delete won the race.
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	if affected != 1 {
		return nil, apperror.NotFound("user", user.ID)
	}

	// Reconcile provider links by replacing the whole set inside the same
	// transaction. Link sets are tiny (at most one per provider), so a
	// delete-and-reinsert is simpler than diffing.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM provider_links WHERE user_id = ?`, user.ID,
	); err != nil {
		return nil, fmt.Errorf("sqlite: clearing links for user %s: %w", user.ID, err)
	}
	if err := insertLinks(ctx, tx, user); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing user update: %w", err)
	}

	user.Attach(db)
	return user, nil
}

// Remove deletes the user; provider links go with them via the foreign
// key cascade. Deleting an already-deleted user is not an error.
func (db *DB) Remove(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		return apperror.ValidationFailed("id", "user must have an id to be removed")
	}

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM users WHERE id = ?`, user.ID,
	); err != nil {
		return fmt.Errorf("sqlite: removing user %s: %w", user.ID, err)
	}
	return nil
}

// GetByID retrieves a user by internal id. Returns (nil, nil) when absent.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getOne(ctx,
		`SELECT id, email, name, picture, password_hash, created_at, updated_at
		 FROM users WHERE id = ?`, id)
}

// GetByEmail retrieves a user by email, case-insensitively.
// Returns (nil, nil) when absent.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		// Many provider-only accounts share an empty email; it never
		// identifies a user.
		return nil, nil
	}
	return db.getOne(ctx,
		`SELECT id, email, name, picture, password_hash, created_at, updated_at
		 FROM users WHERE email = ?`, email)
}

// GetByProviderID retrieves the user holding the given external identity.
// Returns (nil, nil) when no account has linked it.
func (db *DB) GetByProviderID(ctx context.Context, provider, providerID string) (*model.User, error) {
	return db.getOne(ctx,
		`SELECT u.id, u.email, u.name, u.picture, u.password_hash, u.created_at, u.updated_at
		 FROM users u
		 JOIN provider_links l ON l.user_id = u.id
		 WHERE l.provider = ? AND l.provider_id = ?`,
		provider, providerID)
}

// Find returns all users matching the filter, oldest first.
func (db *DB) Find(ctx context.Context, filter repository.Filter) ([]*model.User, error) {
	query := `SELECT u.id, u.email, u.name, u.picture, u.password_hash, u.created_at, u.updated_at
		 FROM users u`
	args := []any{}
	if filter.Provider != "" {
		query += ` JOIN provider_links l ON l.user_id = u.id AND l.provider = ?`
		args = append(args, filter.Provider)
	}
	query += ` ORDER BY u.created_at, u.id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	for _, u := range users {
		if err := db.loadLinks(ctx, u); err != nil {
			return nil, err
		}
		u.Attach(db)
	}
	return users, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.Password, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// getOne runs a single-user query and fully hydrates the entity (links
// loaded, store attached, password snapshot taken). A miss is (nil, nil).
func (db *DB) getOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: looking up user: %w", err)
	}

	if err := db.loadLinks(ctx, u); err != nil {
		return nil, err
	}
	u.Attach(db)
	return u, nil
}

func (db *DB) loadLinks(ctx context.Context, u *model.User) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT provider, provider_id, access_token, token_secret, picture
		 FROM provider_links WHERE user_id = ?`, u.ID)
	if err != nil {
		return fmt.Errorf("sqlite: loading links for user %s: %w", u.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider string
		link := &model.ProviderLink{}
		if err := rows.Scan(&provider, &link.ID, &link.AccessToken, &link.TokenSecret, &link.Picture); err != nil {
			return fmt.Errorf("sqlite: scanning link for user %s: %w", u.ID, err)
		}
		u.SetLink(provider, link)
	}
	return rows.Err()
}

func insertLinks(ctx context.Context, tx *sql.Tx, user *model.User) error {
	for _, provider := range user.LinkedProviders() {
		link := user.Link(provider)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO provider_links (user_id, provider, provider_id, access_token, token_secret, picture)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			user.ID, provider, link.ID, link.AccessToken, link.TokenSecret, link.Picture,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting %s link for user %s: %w", provider, user.ID, mapConstraintErr(err))
		}
	}
	return nil
}
