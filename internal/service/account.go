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

// AccountService handles self-service account management: profile edits,
// password changes, provider unlinking, and account deletion. Every
// operation acts on the already-authenticated user — authorization is the
// session middleware's problem, invariants are ours.
type AccountService struct {
	users    repository.UserRepository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(users repository.UserRepository, logger *slog.Logger) *AccountService {
	return &AccountService{
		users:    users,
		validate: validator.New(),
		logger:   logger,
	}
}

// ProfileInput is the enumerated set of editable profile fields.
type ProfileInput struct {
	Name    string `validate:"required,max=100"`
	Email   string `validate:"required,email"`
	Picture string `validate:"omitempty,url"`
}

// UpdateProfile applies a profile edit. Changing the email re-checks
// uniqueness so the caller gets a conflict instead of a bare constraint
// error from the store.
func (s *AccountService) UpdateProfile(ctx context.Context, user *model.User, input ProfileInput) (*model.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if err := s.validate.Struct(input); err != nil {
		return nil, asValidationError(err)
	}

	if input.Email != user.Email {
		existing, err := s.users.GetByEmail(ctx, input.Email)
		if err != nil {
			return nil, fmt.Errorf("updating profile for %s: %w", user.ID, err)
		}
		if existing != nil && existing.ID != user.ID {
			return nil, apperror.Conflict("an account with this email already exists")
		}
	}

	user.Name = input.Name
	user.Email = input.Email
	if input.Picture != "" {
		user.Picture = input.Picture
	}

	saved, err := s.users.Save(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("updating profile for %s: %w", user.ID, err)
	}
	return saved, nil
}

// passwordInput exists so the password rules live in one validator tag.
type passwordInput struct {
	Password string `validate:"required,min=8,max=72"`
}

// ChangePassword sets (or replaces) the user's local password credential.
// The plaintext goes into the entity's password field; the store detects
// the change against the loaded value and hashes it on save.
func (s *AccountService) ChangePassword(ctx context.Context, user *model.User, password string) (*model.User, error) {
	if err := s.validate.Struct(passwordInput{Password: password}); err != nil {
		return nil, asValidationError(err)
	}

	user.Password = password
	saved, err := s.users.Save(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("changing password for %s: %w", user.ID, err)
	}
	s.logger.Info("password changed", slog.String("userID", saved.ID))
	return saved, nil
}

// DeleteAccount removes the user unconditionally. No soft delete, no
// cascade beyond the record and its provider links.
func (s *AccountService) DeleteAccount(ctx context.Context, user *model.User) error {
	if err := s.users.Remove(ctx, user); err != nil {
		return fmt.Errorf("deleting account %s: %w", user.ID, err)
	}
	s.logger.Info("account deleted", slog.String("userID", user.ID))
	return nil
}

// CanUnlink reports whether removing the named provider link would still
// leave the user a way to sign in. The remaining methods are the OTHER
// provider links, plus the local credential — which only counts when both
// a password and an email to sign in by are set.
func (s *AccountService) CanUnlink(user *model.User, provider string) bool {
	for _, linked := range user.LinkedProviders() {
		if linked != provider {
			return true
		}
	}
	return user.HasPassword() && user.Email != ""
}

// UnlinkProvider removes a provider link, refusing to strand the account
// with zero authentication methods. On refusal nothing is mutated.
func (s *AccountService) UnlinkProvider(ctx context.Context, user *model.User, provider string) (*model.User, error) {
	if !model.ValidProvider(provider) {
		return nil, apperror.ValidationFailed("provider", fmt.Sprintf("unknown provider %q", provider))
	}
	if user.Link(provider) == nil {
		return nil, apperror.NotFound("provider link", provider)
	}
	if !s.CanUnlink(user, provider) {
		return nil, apperror.PreconditionFailed(
			"cannot unlink the last remaining sign-in method; link another account or set an email and password first",
		)
	}

	user.RemoveLink(provider)
	saved, err := s.users.Save(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("unlinking %s for %s: %w", provider, user.ID, err)
	}
	s.logger.Info("provider unlinked",
		slog.String("provider", provider),
		slog.String("userID", saved.ID),
	)
	return saved, nil
}

// ListUsers returns the public directory entries for all users.
func (s *AccountService) ListUsers(ctx context.Context) ([]model.PublicUser, error) {
	users, err := s.users.Find(ctx, repository.Filter{})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	entries := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		entries = append(entries, u.PublicView())
	}
	return entries, nil
}

// GetUser returns the public directory entry for one user.
func (s *AccountService) GetUser(ctx context.Context, id string) (*model.PublicUser, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	if user == nil {
		return nil, apperror.NotFound("user", id)
	}
	view := user.PublicView()
	return &view, nil
}
