package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/identity-service/internal/apperror"
	"github.com/sakif/identity-service/internal/model"
)

func newTestAccountService(t *testing.T) (*AccountService, *mockUserRepo) {
	t.Helper()
	repo := newMockRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewAccountService(repo, logger), repo
}

// =========================================================================
// CanUnlink TESTS
// =========================================================================

func TestCanUnlink(t *testing.T) {
	svc, _ := newTestAccountService(t)

	withLink := func(providers ...string) *model.User {
		u := &model.User{}
		for i, p := range providers {
			u.SetLink(p, &model.ProviderLink{ID: string(rune('a' + i))})
		}
		return u
	}

	tests := []struct {
		name string
		user *model.User
		want bool
	}{
		{
			name: "sole provider link, no local credential",
			user: withLink(model.ProviderGitHub),
			want: false,
		},
		{
			name: "sole provider link, password and email set",
			user: func() *model.User {
				u := withLink(model.ProviderGitHub)
				u.Email = "a@x.com"
				u.Password = "$2a$04$hash"
				return u
			}(),
			want: true,
		},
		{
			name: "password but no email does not count as a method",
			user: func() *model.User {
				u := withLink(model.ProviderGitHub)
				u.Password = "$2a$04$hash"
				return u
			}(),
			want: false,
		},
		{
			name: "email but no password does not count as a method",
			user: func() *model.User {
				u := withLink(model.ProviderGitHub)
				u.Email = "a@x.com"
				return u
			}(),
			want: false,
		},
		{
			name: "another provider link remains",
			user: withLink(model.ProviderGitHub, model.ProviderGoogle),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.CanUnlink(tt.user, model.ProviderGitHub))
		})
	}
}

// =========================================================================
// UnlinkProvider TESTS
// =========================================================================

func TestUnlinkProvider_BlockedForLastMethod(t *testing.T) {
	svc, repo := newTestAccountService(t)

	user := &model.User{}
	user.SetLink(model.ProviderGitHub, &model.ProviderLink{ID: "42"})
	_, err := repo.Create(context.Background(), user)
	require.NoError(t, err)

	_, err = svc.UnlinkProvider(context.Background(), user, model.ProviderGitHub)
	assert.ErrorIs(t, err, apperror.ErrPrecondition)

	// The refusal mutated nothing.
	stored, _ := repo.GetByID(context.Background(), user.ID)
	assert.NotNil(t, stored.Link(model.ProviderGitHub))
}

func TestUnlinkProvider_AllowedWithLocalCredential(t *testing.T) {
	svc, repo := newTestAccountService(t)

	user := &model.User{Email: "a@x.com", Password: "hunter2-but-longer"}
	user.SetLink(model.ProviderGitHub, &model.ProviderLink{ID: "42"})
	_, err := repo.Create(context.Background(), user)
	require.NoError(t, err)

	saved, err := svc.UnlinkProvider(context.Background(), user, model.ProviderGitHub)
	require.NoError(t, err)
	assert.Nil(t, saved.Link(model.ProviderGitHub))

	stored, _ := repo.GetByID(context.Background(), user.ID)
	assert.Nil(t, stored.Link(model.ProviderGitHub))
}

func TestUnlinkProvider_UnknownProvider(t *testing.T) {
	svc, _ := newTestAccountService(t)

	_, err := svc.UnlinkProvider(context.Background(), &model.User{ID: "u1"}, "myspace")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestUnlinkProvider_NotLinked(t *testing.T) {
	svc, _ := newTestAccountService(t)

	_, err := svc.UnlinkProvider(context.Background(), &model.User{ID: "u1"}, model.ProviderGitHub)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// Profile / password / deletion TESTS
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	svc, repo := newTestAccountService(t)

	user, err := repo.Create(context.Background(), &model.User{Email: "a@x.com", Password: "hunter2-but-longer"})
	require.NoError(t, err)

	saved, err := svc.UpdateProfile(context.Background(), user, ProfileInput{
		Name:  "Alice",
		Email: "Alice@X.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", saved.Name)
	assert.Equal(t, "alice@x.com", saved.Email, "email should be normalized to lowercase")
}

func TestUpdateProfile_EmailTakenByAnotherAccount(t *testing.T) {
	svc, repo := newTestAccountService(t)

	_, err := repo.Create(context.Background(), &model.User{Email: "taken@x.com", Password: "hunter2-but-longer"})
	require.NoError(t, err)
	user, err := repo.Create(context.Background(), &model.User{Email: "a@x.com", Password: "hunter2-but-longer"})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(context.Background(), user, ProfileInput{Name: "Alice", Email: "taken@x.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestUpdateProfile_KeepingOwnEmailIsNotAConflict(t *testing.T) {
	svc, repo := newTestAccountService(t)

	user, err := repo.Create(context.Background(), &model.User{Email: "a@x.com", Password: "hunter2-but-longer"})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(context.Background(), user, ProfileInput{Name: "Alice", Email: "A@X.com"})
	assert.NoError(t, err)
}

func TestUpdateProfile_Validation(t *testing.T) {
	svc, _ := newTestAccountService(t)

	_, err := svc.UpdateProfile(context.Background(), &model.User{ID: "u1"}, ProfileInput{Name: "", Email: "a@x.com"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.UpdateProfile(context.Background(), &model.User{ID: "u1"}, ProfileInput{Name: "Alice", Email: "nope"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestChangePassword(t *testing.T) {
	svc, repo := newTestAccountService(t)

	user, err := repo.Create(context.Background(), &model.User{Email: "a@x.com", Password: "old-password-1"})
	require.NoError(t, err)

	_, err = svc.ChangePassword(context.Background(), user, "short")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	saved, err := svc.ChangePassword(context.Background(), user, "new-password-1")
	require.NoError(t, err)
	assert.True(t, saved.ComparePassword("new-password-1"))
	assert.False(t, saved.ComparePassword("old-password-1"))
	assert.NotEqual(t, "new-password-1", saved.Password, "plaintext must never be stored")
}

func TestDeleteAccount(t *testing.T) {
	svc, repo := newTestAccountService(t)

	user, err := repo.Create(context.Background(), &model.User{Email: "a@x.com", Password: "hunter2-but-longer"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(context.Background(), user))

	stored, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

// =========================================================================
// Directory TESTS
// =========================================================================

func TestListUsers_PublicViewOnly(t *testing.T) {
	svc, repo := newTestAccountService(t)

	u := &model.User{Email: "a@x.com", Name: "Alice", Password: "hunter2-but-longer"}
	u.SetLink(model.ProviderGitHub, &model.ProviderLink{ID: "42", AccessToken: "secret"})
	_, err := repo.Create(context.Background(), u)
	require.NoError(t, err)

	entries, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alice", entries[0].Name)
	// PublicUser carries no email, password, or token fields at all.
}

func TestGetUser(t *testing.T) {
	svc, repo := newTestAccountService(t)

	user, err := repo.Create(context.Background(), &model.User{Email: "a@x.com", Name: "Alice", Password: "hunter2-but-longer"})
	require.NoError(t, err)

	entry, err := svc.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, entry.ID)

	_, err = svc.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
