// Package service contains the business logic layer of the application.
//
// The layering follows the usual three-layer split:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (business) → validates, enforces rules, orchestrates
//	Repository (data)  → reads/writes the database
//
// IdentityService is the heart of this application: it adjudicates every
// sign-in. By the time it runs, the OAuth handshake (or password form
// post) is already done — it receives a VERIFIED provider profile plus
// whoever the session says is signed in, and decides between
// authenticating, linking, creating, or rejecting. It never retries and
// never mutates anything on a rejection.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/identity-service/internal/apperror"
	"github.com/sakif/identity-service/internal/model"
	"github.com/sakif/identity-service/internal/repository"
)

// Outcome classifies how a provider login was resolved.
type Outcome string

const (
	// OutcomeAuthenticated — the identity was already linked; the caller
	// should start a session for the returned user.
	OutcomeAuthenticated Outcome = "authenticated"
	// OutcomeLinked — the identity was attached to the signed-in user.
	OutcomeLinked Outcome = "linked"
	// OutcomeCreated — a new account was created from the profile.
	OutcomeCreated Outcome = "created"
	// OutcomeConflict — the identity belongs to a different account than
	// the one signed in; nothing was changed.
	OutcomeConflict Outcome = "rejected-conflict"
	// OutcomeDuplicateEmail — a different account already uses the
	// profile's email; nothing was changed. Sign in to that account and
	// link explicitly instead.
	OutcomeDuplicateEmail Outcome = "rejected-duplicate-email"
)

// ProviderProfile is the verified identity a provider reported for the
// person completing a login. The transport adapters normalize each
// provider's response shape into this one struct — the resolution logic
// below is identical for every provider.
type ProviderProfile struct {
	Provider    string // one of model.Providers
	ID          string // the provider's stable user id
	Email       string // may be empty (user hid it, or provider has none)
	Name        string
	Picture     string
	AccessToken string
	TokenSecret string // OAuth1-era providers only
}

// ProviderConfig enables a provider and carries its client credentials.
// Passed in explicitly at construction — there is no global provider
// registry read at import time.
type ProviderConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
}

// IdentityService resolves logins (provider and local-password) against
// the user store.
type IdentityService struct {
	users     repository.UserRepository
	providers map[string]ProviderConfig
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewIdentityService creates an IdentityService. providers enumerates the
// configured providers; any provider absent from the map is disabled.
func NewIdentityService(
	users repository.UserRepository,
	providers map[string]ProviderConfig,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		users:     users,
		providers: providers,
		validate:  validator.New(),
		logger:    logger,
	}
}

// ProviderEnabled reports whether the named provider is configured for use.
func (s *IdentityService) ProviderEnabled(name string) bool {
	return s.providers[name].Enabled
}

// ResolveProviderLogin decides what a successful provider login means for
// the local account database.
//
// current is the user the session is already authenticated as, or nil.
// The decision tree, in order:
//
//  1. The identity is already linked to some account:
//     - no session            → authenticate as that account
//     - session is that user  → idempotent success, no mutation
//     - session is a DIFFERENT user → conflict, no mutation
//  2. No existing link, active session → attach the link to the
//     session's user (backfilling picture/email only if unset) and save.
//  3. No existing link, no session:
//     - the profile's email already belongs to an account → rejected.
//     An attacker controlling a matching-but-unverified email at the
//     provider must not be handed the existing account; the owner has
//     to sign in first and link explicitly (path 2).
//     - otherwise → create a fresh account from the profile.
//
// On rejection outcomes the returned error is a typed conflict; the user
// result is the conflicting account's owner only where that is safe (nil
// otherwise).
func (s *IdentityService) ResolveProviderLogin(ctx context.Context, profile ProviderProfile, current *model.User) (*model.User, Outcome, error) {
	if !model.ValidProvider(profile.Provider) {
		return nil, "", apperror.ValidationFailed("provider", fmt.Sprintf("unknown provider %q", profile.Provider))
	}
	if !s.ProviderEnabled(profile.Provider) {
		return nil, "", apperror.ValidationFailed("provider", fmt.Sprintf("provider %q is not enabled", profile.Provider))
	}
	if profile.ID == "" {
		return nil, "", apperror.ValidationFailed("id", "provider profile has no user id")
	}

	// Step 1: is this external identity linked to anyone already?
	linked, err := s.users.GetByProviderID(ctx, profile.Provider, profile.ID)
	if err != nil {
		return nil, "", fmt.Errorf("resolving provider login: %w", err)
	}
	if linked != nil {
		if current == nil || current.ID == linked.ID {
			s.logger.Info("provider login authenticated",
				slog.String("provider", profile.Provider),
				slog.String("userID", linked.ID),
			)
			return linked, OutcomeAuthenticated, nil
		}
		// Linked to somebody else while a different user is signed in.
		s.logger.Warn("provider login conflict",
			slog.String("provider", profile.Provider),
			slog.String("linkedUserID", linked.ID),
			slog.String("currentUserID", current.ID),
		)
		return nil, OutcomeConflict, apperror.Conflict(fmt.Sprintf(
			"this %s account is already linked to another user; sign in with that account or delete it first",
			profile.Provider,
		))
	}

	// Step 2: signed in, unlinked identity → link it to the current user.
	if current != nil {
		current.SetLink(profile.Provider, &model.ProviderLink{
			ID:          profile.ID,
			AccessToken: profile.AccessToken,
			TokenSecret: profile.TokenSecret,
			Picture:     profile.Picture,
		})
		// Backfill profile attributes the account is missing; never
		// overwrite what the user already has.
		if current.Picture == "" {
			current.Picture = profile.Picture
		}
		if current.Email == "" {
			current.Email = profile.Email
		}

		saved, err := s.users.Save(ctx, current)
		if err != nil {
			return nil, "", fmt.Errorf("linking %s identity: %w", profile.Provider, err)
		}
		s.logger.Info("provider identity linked",
			slog.String("provider", profile.Provider),
			slog.String("userID", saved.ID),
		)
		return saved, OutcomeLinked, nil
	}

	// Step 3: nobody signed in and the identity is unknown.
	if profile.Email != "" {
		existing, err := s.users.GetByEmail(ctx, profile.Email)
		if err != nil {
			return nil, "", fmt.Errorf("resolving provider login: %w", err)
		}
		if existing != nil {
			return nil, OutcomeDuplicateEmail, apperror.Conflict(
				"an account already uses this email address; sign in to it and link the provider manually",
			)
		}
	}

	user := &model.User{
		Email:   profile.Email,
		Name:    profile.Name,
		Picture: profile.Picture,
	}
	user.SetLink(profile.Provider, &model.ProviderLink{
		ID:          profile.ID,
		AccessToken: profile.AccessToken,
		TokenSecret: profile.TokenSecret,
		Picture:     profile.Picture,
	})

	created, err := s.users.Create(ctx, user)
	if err != nil {
		return nil, "", fmt.Errorf("creating user from %s profile: %w", profile.Provider, err)
	}
	s.logger.Info("user created from provider login",
		slog.String("provider", profile.Provider),
		slog.String("userID", created.ID),
	)
	return created, OutcomeCreated, nil
}

// LoginWithPassword is the local-credential path: look the account up by
// email and check the password. Both failure modes are unauthorized
// errors; the second is deliberately vague so responses don't confirm
// which part was wrong.
func (s *IdentityService) LoginWithPassword(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("logging in %s: %w", email, err)
	}
	if user == nil {
		return nil, apperror.Unauthorized(fmt.Sprintf("email %s not found", email))
	}
	if !user.ComparePassword(password) {
		return nil, apperror.Unauthorized("invalid email or password")
	}
	return user, nil
}

// RegisterInput is the enumerated field set accepted at signup. Unknown
// fields never reach the store — this struct is the whole surface.
type RegisterInput struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"max=100"`
	Password string `validate:"required,min=8,max=72"`
}

// Register creates an account with a local password credential.
func (s *IdentityService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if err := s.validate.Struct(input); err != nil {
		return nil, asValidationError(err)
	}

	existing, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", input.Email, err)
	}
	if existing != nil {
		return nil, apperror.Conflict("an account with this email already exists")
	}

	created, err := s.users.Create(ctx, &model.User{
		Email:    input.Email,
		Name:     input.Name,
		Password: input.Password, // hashed by the store on the way in
	})
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", input.Email, err)
	}
	s.logger.Info("user registered", slog.String("userID", created.ID))
	return created, nil
}

// asValidationError converts a go-playground/validator error into the
// application's validation error, keeping the first failing field.
func asValidationError(err error) error {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperror.ValidationFailed(
			strings.ToLower(fe.Field()),
			fmt.Sprintf("%s failed %q validation", strings.ToLower(fe.Field()), fe.Tag()),
		)
	}
	return apperror.ValidationFailed("", err.Error())
}
