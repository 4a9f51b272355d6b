// Package model defines the data structures used throughout the application.
package model

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sakif/identity-service/internal/auth"
)

// Supported external identity providers. The set is fixed: the linking
// engine, the store schema, and the HTTP routes all enumerate it.
const (
	ProviderGitHub  = "github"
	ProviderGoogle  = "google"
	ProviderTwitter = "twitter"
)

// Providers lists every supported provider name, in stable order.
var Providers = []string{ProviderGitHub, ProviderGoogle, ProviderTwitter}

// ValidProvider reports whether name is one of the supported providers.
func ValidProvider(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

// ProviderLink associates a user with an identity issued by an external
// provider. AccessToken (and for OAuth1-era providers, TokenSecret) are
// credentials — they never appear in any serialized view of the user.
type ProviderLink struct {
	ID          string `json:"id"`               // the provider's user id, e.g. GitHub's numeric id as a string
	AccessToken string `json:"-"`                // OAuth access token, redacted everywhere
	TokenSecret string `json:"-"`                // OAuth1 token secret (twitter), redacted everywhere
	Picture     string `json:"picture,omitempty"` // avatar URL as reported by the provider
}

// Store is the persistence surface a User entity delegates to. It is
// implemented by the repository that loaded the user; declaring it here
// keeps model free of a repository import.
type Store interface {
	Save(ctx context.Context, user *User) (*User, error)
	Remove(ctx context.Context, user *User) error
}

// User represents an account record plus the behavior that keeps its
// credentials safe.
//
// Password holds the bcrypt hash as loaded from storage. To change the
// password, assign the new PLAINTEXT to the field and Save — the store
// detects that the value differs from the one captured at load time and
// hashes it before writing. An unchanged field is written back as-is,
// which is what prevents double-hashing an already-hashed value.
//
// A user must keep at least one way to sign in: a password (with an email
// to sign in by) or at least one provider link. Creation establishes
// exactly one method; the unlink guard in the service layer blocks
// removing the last one.
type User struct {
	ID        string                   `json:"id"`
	Email     string                   `json:"email,omitempty"` // stored lowercase, unique among non-empty
	Name      string                   `json:"name,omitempty"`
	Picture   string                   `json:"picture,omitempty"`
	Password  string                   `json:"-"` // bcrypt hash at rest, never serialized
	Providers map[string]*ProviderLink `json:"-"` // links carry tokens, only exposed via SafeView
	CreatedAt time.Time                `json:"createdAt"`
	UpdatedAt time.Time                `json:"updatedAt"`

	// private bookkeeping, set by the owning store
	store            Store
	originalPassword string
}

// Attach binds the user to the store that owns it and snapshots the
// current password value for change detection. Repositories call this on
// every entity they hand out; it is not part of the public data model.
func (u *User) Attach(store Store) {
	u.store = store
	u.originalPassword = u.Password
}

// PasswordChanged reports whether the Password field holds a new value
// since the user was loaded or last saved. The store re-hashes only when
// this is true — saving an untouched user must not alter the stored hash.
func (u *User) PasswordChanged() bool {
	return u.Password != "" && u.Password != u.originalPassword
}

// MarkStored records the current password value as the stored state.
// Called by the store after a successful write.
func (u *User) MarkStored() {
	u.originalPassword = u.Password
}

// HasPassword reports whether a local password credential is configured.
func (u *User) HasPassword() bool {
	return u.Password != ""
}

// ComparePassword checks a candidate password against the stored hash.
// Returns false (not an error) when the user has no password set.
func (u *User) ComparePassword(candidate string) bool {
	return auth.VerifyPassword(candidate, u.Password)
}

// Link returns the provider link for the named provider, or nil.
func (u *User) Link(provider string) *ProviderLink {
	return u.Providers[provider]
}

// SetLink attaches or replaces the link for the named provider.
func (u *User) SetLink(provider string, link *ProviderLink) {
	if u.Providers == nil {
		u.Providers = make(map[string]*ProviderLink)
	}
	u.Providers[provider] = link
}

// RemoveLink deletes the link for the named provider, if present.
func (u *User) RemoveLink(provider string) {
	delete(u.Providers, provider)
}

// LinkedProviders returns the names of providers this user has linked,
// in stable order.
func (u *User) LinkedProviders() []string {
	names := make([]string, 0, len(u.Providers))
	for name := range u.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save persists the user through the store it was loaded from.
func (u *User) Save(ctx context.Context) (*User, error) {
	if u.store == nil {
		return nil, fmt.Errorf("model: user is not attached to a store")
	}
	return u.store.Save(ctx, u)
}

// Destroy removes the user through the store it was loaded from.
// Deletion is unconditional — there is no soft delete.
func (u *User) Destroy(ctx context.Context) error {
	if u.store == nil {
		return fmt.Errorf("model: user is not attached to a store")
	}
	return u.store.Remove(ctx, u)
}

// SafeUser is the redacted representation of a user. It is the ONLY form
// that may cross the system boundary (API responses, logs): no password
// hash, no access tokens, no token secrets.
type SafeUser struct {
	ID          string                      `json:"id"`
	Email       string                      `json:"email,omitempty"`
	Name        string                      `json:"name,omitempty"`
	Picture     string                      `json:"picture,omitempty"`
	HasPassword bool                        `json:"hasPassword"`
	Providers   map[string]SafeProviderLink `json:"providers,omitempty"`
	CreatedAt   time.Time                   `json:"createdAt"`
	UpdatedAt   time.Time                   `json:"updatedAt"`
}

// SafeProviderLink is a provider link with every credential stripped.
type SafeProviderLink struct {
	ID      string `json:"id"`
	Picture string `json:"picture,omitempty"`
}

// SafeView builds the redacted representation of the user.
func (u *User) SafeView() SafeUser {
	view := SafeUser{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Picture:     u.Picture,
		HasPassword: u.HasPassword(),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	if len(u.Providers) > 0 {
		view.Providers = make(map[string]SafeProviderLink, len(u.Providers))
		for name, link := range u.Providers {
			view.Providers[name] = SafeProviderLink{ID: link.ID, Picture: link.Picture}
		}
	}
	return view
}

// PublicUser is the minimal profile shown in the user directory.
type PublicUser struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// PublicView builds the directory representation of the user.
func (u *User) PublicView() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Picture: u.Picture}
}
