package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "test-secret-at-least-16-chars"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return ts
}

func TestNewTokenService_RejectsShortSecret(t *testing.T) {
	if _, err := NewTokenService("short"); err == nil {
		t.Fatal("NewTokenService() should reject secrets under 16 characters")
	}
}

func TestGenerateAndValidate(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	userID, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if userID != "user-123" {
		t.Errorf("Validate() userID = %q, want %q", userID, "user-123")
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("user-123", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() should reject an expired token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("another-secret-16-chars-long")

	token, _ := ts.Generate("user-123")
	if _, err := other.Validate(token); err == nil {
		t.Fatal("Validate() should reject a token signed with a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Validate("not.a.jwt"); err == nil {
		t.Fatal("Validate() should reject a malformed token")
	}
}

// =========================================================================
// MIDDLEWARE TESTS
// =========================================================================

// echoUserID is a handler that reports the context userID, or 404-ish
// text when none is set.
func echoUserID(w http.ResponseWriter, r *http.Request) {
	if id, ok := UserIDFromContext(r.Context()); ok {
		w.Write([]byte(id))
		return
	}
	w.Write([]byte("anonymous"))
}

func TestRequireAuth_NoCookie(t *testing.T) {
	ts := newTestTokenService(t)

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	rec := httptest.NewRecorder()
	ts.RequireAuth(http.HandlerFunc(echoUserID)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("RequireAuth without cookie: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuth_ValidCookie(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate("user-123")

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rec := httptest.NewRecorder()
	ts.RequireAuth(http.HandlerFunc(echoUserID)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("RequireAuth with valid cookie: status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "user-123" {
		t.Errorf("context userID = %q, want %q", rec.Body.String(), "user-123")
	}
}

func TestRequireAuth_InvalidCookie(t *testing.T) {
	ts := newTestTokenService(t)

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tampered"})
	rec := httptest.NewRecorder()
	ts.RequireAuth(http.HandlerFunc(echoUserID)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("RequireAuth with invalid cookie: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)

	// Without a cookie the request passes through anonymously.
	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback", nil)
	rec := httptest.NewRecorder()
	ts.OptionalAuth(http.HandlerFunc(echoUserID)).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Errorf("OptionalAuth without cookie = (%d, %q), want (200, anonymous)", rec.Code, rec.Body.String())
	}

	// With a valid cookie the userID is populated.
	token, _ := ts.Generate("user-123")
	req = httptest.NewRequest(http.MethodGet, "/auth/github/callback", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rec = httptest.NewRecorder()
	ts.OptionalAuth(http.HandlerFunc(echoUserID)).ServeHTTP(rec, req)
	if rec.Body.String() != "user-123" {
		t.Errorf("OptionalAuth with cookie userID = %q, want %q", rec.Body.String(), "user-123")
	}
}
