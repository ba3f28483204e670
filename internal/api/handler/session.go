package handler

import (
	"net/http"
	"strings"

	"github.com/bcnelson/agent-access-manager/internal/api/middleware"
	"github.com/bcnelson/agent-access-manager/internal/auth"
	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/sirupsen/logrus"
)

// SessionHandler runs the OIDC login flow.
type SessionHandler struct {
	authenticator auth.Authenticator
	states        *auth.StateStore
	sessions      *auth.SessionManager
	logoutURL     string
	logger        logrus.FieldLogger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(authenticator auth.Authenticator, states *auth.StateStore, sessions *auth.SessionManager, logoutURL string, logger logrus.FieldLogger) *SessionHandler {
	return &SessionHandler{
		authenticator: authenticator,
		states:        states,
		sessions:      sessions,
		logoutURL:     logoutURL,
		logger:        logger.WithField("handler", "session"),
	}
}

// Login redirects to the identity provider.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	data, err := h.states.Generate(w, safeReturnTo(r.URL.Query().Get("returnTo")))
	if err != nil {
		h.logger.WithError(err).Error("generating oidc state")
		respondError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "failed to initiate login")
		return
	}
	http.Redirect(w, r, h.authenticator.AuthCodeURL(data.State, data.Nonce), http.StatusSeeOther)
}

// Callback completes the flow and sets the session cookie.
func (h *SessionHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = errParam
		}
		h.logger.WithFields(logrus.Fields{"error": errParam, "description": desc}).Warn("oidc provider returned error")
		respondError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, desc)
		return
	}

	code := q.Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "no authorization code received")
		return
	}

	state, err := h.states.Validate(r, q.Get("state"))
	if err != nil {
		h.logger.WithError(err).Warn("oidc state validation failed")
		respondError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid state parameter")
		return
	}
	h.states.Clear(w)

	claims, err := h.authenticator.Exchange(r.Context(), code, state.Nonce)
	if err != nil {
		h.logger.WithError(err).Warn("oidc exchange failed")
		respondError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "failed to complete authentication")
		return
	}

	session := &auth.Session{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}
	if err := h.sessions.Create(w, session); err != nil {
		h.logger.WithError(err).Error("creating session")
		respondError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "failed to create session")
		return
	}
	h.logger.WithField("email", claims.Email).Info("user logged in")

	if state.ReturnTo != "" {
		http.Redirect(w, r, state.ReturnTo, http.StatusSeeOther)
		return
	}
	respondJSON(w, http.StatusOK, &domain.Principal{Email: session.Email, Name: session.Name})
}

// Logout clears the session cookie.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	if h.logoutURL != "" {
		http.Redirect(w, r, h.logoutURL, http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated caller.
func Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		respondError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "not authenticated")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// safeReturnTo keeps only same-origin absolute paths.
func safeReturnTo(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return ""
	}
	return raw
}
