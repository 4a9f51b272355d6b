package model

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// testHash returns a real bcrypt hash at the minimum cost, so the entity
// tests exercise actual verification without the cost-12 slowdown.
func testHash(t *testing.T, plaintext string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword() error = %v", err)
	}
	return string(hash)
}

func TestComparePassword(t *testing.T) {
	u := &User{Password: testHash(t, "hunter2")}

	if !u.ComparePassword("hunter2") {
		t.Error("ComparePassword() = false for the correct password")
	}
	if u.ComparePassword("wrong") {
		t.Error("ComparePassword() = true for the wrong password")
	}
}

func TestComparePassword_NoPasswordSet(t *testing.T) {
	// A provider-only account has no password. Comparing must return
	// false, never error or panic.
	u := &User{}

	if u.ComparePassword("anything") {
		t.Error("ComparePassword() = true for a user with no password")
	}
	if u.ComparePassword("") {
		t.Error("ComparePassword(\"\") = true for a user with no password")
	}
}

func TestPasswordChanged(t *testing.T) {
	hash := testHash(t, "hunter2")
	u := &User{ID: "u1", Password: hash}
	u.Attach(nil) // snapshots the loaded password

	if u.PasswordChanged() {
		t.Error("PasswordChanged() = true immediately after load")
	}

	// Assigning a new plaintext marks the field dirty.
	u.Password = "new-password"
	if !u.PasswordChanged() {
		t.Error("PasswordChanged() = false after assigning a new password")
	}

	// MarkStored resets the snapshot (store calls this after a write).
	u.MarkStored()
	if u.PasswordChanged() {
		t.Error("PasswordChanged() = true after MarkStored()")
	}
}

func TestPasswordChanged_ClearedPasswordIsNotAChange(t *testing.T) {
	u := &User{Password: testHash(t, "hunter2")}
	u.Attach(nil)

	// An empty password field means "no credential", not "hash the empty
	// string". The change-detection rule requires the value to be present.
	u.Password = ""
	if u.PasswordChanged() {
		t.Error("PasswordChanged() = true for an emptied password field")
	}
}

func TestSafeView_RedactsSecrets(t *testing.T) {
	u := &User{
		ID:       "u1",
		Email:    "a@x.com",
		Name:     "Alice",
		Password: testHash(t, "hunter2"),
	}
	u.SetLink(ProviderGitHub, &ProviderLink{
		ID:          "42",
		AccessToken: "gho_secret_token",
		Picture:     "https://avatars.example/42",
	})
	u.SetLink(ProviderTwitter, &ProviderLink{
		ID:          "99",
		AccessToken: "twitter-token",
		TokenSecret: "twitter-token-secret",
	})

	raw, err := json.Marshal(u.SafeView())
	if err != nil {
		t.Fatalf("json.Marshal(SafeView()) error = %v", err)
	}
	encoded := string(raw)

	for _, secret := range []string{
		u.Password,
		"gho_secret_token",
		"twitter-token",
		"twitter-token-secret",
		"passwordHash",
		"accessToken",
		"tokenSecret",
	} {
		if strings.Contains(encoded, secret) {
			t.Errorf("SafeView() JSON contains secret material %q: %s", secret, encoded)
		}
	}

	// The non-sensitive parts must survive redaction.
	view := u.SafeView()
	if !view.HasPassword {
		t.Error("SafeView().HasPassword = false for a user with a password")
	}
	if view.Providers[ProviderGitHub].ID != "42" {
		t.Errorf("SafeView() github link id = %q, want %q", view.Providers[ProviderGitHub].ID, "42")
	}
}

// Even marshaling the entity directly must not leak credentials — the
// sensitive fields carry json:"-" as a second line of defense.
func TestUserDirectMarshal_RedactsSecrets(t *testing.T) {
	u := &User{
		ID:       "u1",
		Password: testHash(t, "hunter2"),
	}
	u.SetLink(ProviderGoogle, &ProviderLink{ID: "7", AccessToken: "ya29.secret"})

	raw, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("json.Marshal(user) error = %v", err)
	}
	if strings.Contains(string(raw), "$2") || strings.Contains(string(raw), "ya29.secret") {
		t.Errorf("marshaled user leaks credentials: %s", raw)
	}
}

func TestLinkedProviders_StableOrder(t *testing.T) {
	u := &User{}
	u.SetLink(ProviderTwitter, &ProviderLink{ID: "1"})
	u.SetLink(ProviderGitHub, &ProviderLink{ID: "2"})

	got := u.LinkedProviders()
	want := []string{ProviderGitHub, ProviderTwitter}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("LinkedProviders() = %v, want %v", got, want)
	}
}

func TestValidProvider(t *testing.T) {
	for _, name := range Providers {
		if !ValidProvider(name) {
			t.Errorf("ValidProvider(%q) = false", name)
		}
	}
	if ValidProvider("myspace") {
		t.Error("ValidProvider(\"myspace\") = true")
	}
}

func TestSaveWithoutStore(t *testing.T) {
	u := &User{ID: "u1"}
	if _, err := u.Save(context.Background()); err == nil {
		t.Error("Save() on an unattached user should error")
	}
	if err := u.Destroy(context.Background()); err == nil {
		t.Error("Destroy() on an unattached user should error")
	}
}
