package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/identity-service/internal/apperror"
	"github.com/sakif/identity-service/internal/auth"
	"github.com/sakif/identity-service/internal/model"
	"github.com/sakif/identity-service/internal/repository"
	"github.com/sakif/identity-service/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler owns the sign-in surface: local signup and login, the
// provider redirect/callback pair, logout, and the "who am I" endpoint.
//
// The callback routes run behind OptionalAuth, not RequireAuth: the same
// URL serves a fresh sign-in and a link request from an active session.
// Which one it is gets decided by the identity service, not here.
type AuthHandler struct {
	providers map[string]*auth.Provider
	identity  *service.IdentityService
	users     repository.UserRepository
	tokens    *auth.TokenService
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler. providers holds one transport
// adapter per enabled provider, keyed by name.
func NewAuthHandler(
	providers map[string]*auth.Provider,
	identity *service.IdentityService,
	users repository.UserRepository,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		providers: providers,
		identity:  identity,
		users:     users,
		tokens:    tokens,
		logger:    logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

// HandleSignup creates an account with a local password credential.
//
// HTTP: POST /auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.identity.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if !h.startSession(w, user) {
		return
	}
	writeJSON(w, http.StatusCreated, user.SafeView())
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.identity.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if !h.startSession(w, user) {
		return
	}
	writeJSON(w, http.StatusOK, user.SafeView())
}

// HandleProviderLogin starts the OAuth flow: it sets a single-use state
// cookie and redirects the browser to the provider's authorization page.
//
// HTTP: GET /auth/{provider}
//
// The state cookie is HttpOnly, SameSite=Lax, and expires in 10 minutes.
// The callback rejects any response whose state does not match it.
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		writeError(w, apperror.ValidationFailed("provider", "unknown or disabled provider"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleProviderCallback completes the OAuth flow: it verifies the CSRF
// state, exchanges the code for a verified profile, and hands the result
// to the identity service to authenticate, link, create, or reject.
//
// HTTP: GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		writeError(w, apperror.ValidationFailed("provider", "unknown or disabled provider"))
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch", slog.String("provider", provider.Name()))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("provider", provider.Name()),
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	identity, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: exchange failed",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// An active session turns this callback into a link request.
	current, err := h.sessionUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	user, outcome, err := h.identity.ResolveProviderLogin(r.Context(), service.ProviderProfile{
		Provider:    identity.Provider,
		ID:          identity.ID,
		Email:       identity.Email,
		Name:        identity.Name,
		Picture:     identity.Picture,
		AccessToken: identity.AccessToken,
	}, current)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("provider login resolved",
		slog.String("provider", provider.Name()),
		slog.String("outcome", string(outcome)),
		slog.String("userID", user.ID),
	)

	if !h.startSession(w, user) {
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie. The JWT itself stays valid
// until it expires; nothing is stored server-side to revoke.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated user's own account view, with the
// credential material redacted.
//
// HTTP: GET /api/account
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := requestUser(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.SafeView())
}

// startSession issues the session JWT as an HttpOnly cookie. Returns
// false after writing an error response if signing fails.
func (h *AuthHandler) startSession(w http.ResponseWriter, user *model.User) bool {
	token, err := h.tokens.Generate(user.ID)
	if err != nil {
		h.logger.Error("session token generation failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.SessionLifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// Secure: true, // requires HTTPS; enable behind TLS
	})
	return true
}

// sessionUser loads the user for an OPTIONAL session: (nil, nil) when the
// request carries no valid session, or when the session points at an
// account that no longer exists.
func (h *AuthHandler) sessionUser(r *http.Request) (*model.User, error) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return nil, nil
	}
	return h.users.GetByID(r.Context(), userID)
}

// requestUser loads the user for a RequireAuth-protected route. A valid
// token whose account was deleted yields an unauthorized error, so stale
// sessions fall back to the sign-in flow.
func requestUser(r *http.Request, users repository.UserRepository) (*model.User, error) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return nil, apperror.Unauthorized("authentication required")
	}
	user, err := users.GetByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.Unauthorized("account no longer exists")
	}
	return user, nil
}

// clearSession tells the browser to drop the session cookie immediately.
func clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
