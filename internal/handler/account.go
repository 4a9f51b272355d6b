package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/identity-service/internal/repository"
	"github.com/sakif/identity-service/internal/service"
)

// AccountHandler serves the authenticated self-service endpoints. All of
// its routes sit behind RequireAuth, so the session userID is always in
// the request context.
type AccountHandler struct {
	accounts *service.AccountService
	users    repository.UserRepository
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts *service.AccountService, users repository.UserRepository, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		users:    users,
		logger:   logger,
	}
}

type profileRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

// HandleUpdateProfile edits the account's profile fields.
//
// HTTP: PUT /api/account/profile
func (h *AccountHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := requestUser(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	saved, err := h.accounts.UpdateProfile(r.Context(), user, service.ProfileInput{
		Name:    req.Name,
		Email:   req.Email,
		Picture: req.Picture,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved.SafeView())
}

type passwordRequest struct {
	Password string `json:"password"`
}

// HandleChangePassword sets or replaces the local password credential.
//
// HTTP: PUT /api/account/password
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := requestUser(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}

	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	saved, err := h.accounts.ChangePassword(r.Context(), user, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved.SafeView())
}

// HandleDeleteAccount removes the account and ends the session.
//
// HTTP: DELETE /api/account
func (h *AccountHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, err := requestUser(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnlink detaches a provider identity from the account. Removing
// the last remaining sign-in method is refused with a conflict.
//
// HTTP: DELETE /api/account/links/{provider}
func (h *AccountHandler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	user, err := requestUser(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}

	saved, err := h.accounts.UnlinkProvider(r.Context(), user, chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved.SafeView())
}
