// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/bitlabs-dev/objevents/internal/auth"
	"github.com/bitlabs-dev/objevents/internal/middleware"
	"github.com/bitlabs-dev/objevents/internal/store"
)

// AuthHandler handles login and logout.
type AuthHandler struct {
	queries        *store.Queries
	sessionManager *scs.SessionManager
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *sql.DB, sm *scs.SessionManager) *AuthHandler {
	return &AuthHandler{
		queries:        store.New(db),
		sessionManager: sm,
	}
}

// Login handles POST /login with email and password form fields.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	email := r.PostForm.Get("email")
	password := r.PostForm.Get("password")
	if email == "" || password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.queries.GetUserByEmail(r.Context(), email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logAndInternalError(w, "failed to load user", "error", err)
			return
		}
		// Unknown email and wrong password answer identically.
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	valid, err := auth.CheckPassword(password, user.PasswordHash)
	if err != nil {
		logAndInternalError(w, "failed to verify password", "error", err)
		return
	}
	if !valid {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	// Renew the session token on privilege change to prevent fixation.
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "failed to renew session", "error", err)
		return
	}
	h.sessionManager.Put(r.Context(), middleware.SessionKeyUserID, user.ID)

	if wantsAck(r) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Redirect(w, r, "/events", http.StatusSeeOther)
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		logAndInternalError(w, "failed to destroy session", "error", err)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
