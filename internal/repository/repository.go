// Package repository declares the persistence interfaces the service layer
// programs against. Concrete implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/sakif/identity-service/internal/model"
)

// Filter enumerates the supported lookup criteria for Find. Arbitrary
// field criteria are deliberately not supported — the store accepts a
// fixed set of shapes rather than merging caller-supplied documents.
type Filter struct {
	Provider string // only users holding a link to this provider ("" = any)
	Limit    int    // 0 = no limit
	Offset   int
}

// UserRepository is the user store.
//
// Lookup methods (GetByEmail, GetByID, GetByProviderID) treat absence as a
// value: they return (nil, nil) when no user matches. "No such user" is a
// normal branch for the linking engine, not a failure. Save and Remove DO
// return typed errors for missing records — there, a miss means the caller
// lost a race with a concurrent delete.
//
// Writes enforce the hashing rule: a plaintext password passed to Create,
// or a changed password passed to Save, is bcrypt-hashed before it reaches
// storage. The plaintext is never written.
type UserRepository interface {
	// Create inserts a new user. If user.Password is set it is hashed
	// first. Returns a validation error when a uniqueness constraint
	// (email, provider id) is violated.
	Create(ctx context.Context, user *model.User) (*model.User, error)

	// Find returns all users matching the filter, in storage order.
	Find(ctx context.Context, filter Filter) ([]*model.User, error)

	// GetByEmail looks a user up by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// GetByID looks a user up by internal id.
	GetByID(ctx context.Context, id string) (*model.User, error)

	// GetByProviderID looks a user up by an external identity: the id
	// the named provider issued for them.
	GetByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)

	// Save persists changes to an existing user, creating it when the
	// id is unset. Re-hashes the password only when it changed since
	// load. Returns a not-found error when the record no longer exists.
	Save(ctx context.Context, user *model.User) (*model.User, error)

	// Remove deletes the user and their provider links. Returns a
	// validation error when user.ID is unset.
	Remove(ctx context.Context, user *model.User) error
}
