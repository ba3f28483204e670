// Package handler implements the HTTP endpoints on top of the service layer.
package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/bcnelson/agent-access-manager/internal/api/middleware"
	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a StandardErrorResponse.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &domain.StandardErrorResponse{
		Error: domain.StandardError{Code: code, Message: message},
	})
}

// handleError converts domain errors to HTTP errors. Messages of *domain.Error
// and validation errors are shown to the caller; anything else is logged and
// reported generically.
func handleError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	var (
		verr  *validation.ValidationError
		verrs validation.ValidationErrors
	)
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, &domain.StandardErrorResponse{
			Error: domain.StandardError{
				Code:    domain.ErrCodeValidationError,
				Message: verr.Message,
				Field:   verr.Field,
				Value:   verr.Value,
			},
		})
		return
	case errors.As(err, &verrs) && len(verrs) > 0:
		first := verrs[0]
		respondJSON(w, http.StatusBadRequest, &domain.StandardErrorResponse{
			Error: domain.StandardError{
				Code:    domain.ErrCodeValidationError,
				Message: verrs.Error(),
				Field:   first.Field,
				Value:   first.Value,
				Details: map[string]any{"errors": verrs},
			},
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, messageOr(err, "invalid input"))
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, domain.ErrCodeResourceNotFound, messageOr(err, "not found"))
	case domain.IsConflict(err):
		respondError(w, http.StatusConflict, domain.ErrCodeResourceAlreadyExists, messageOr(err, "already exists"))
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, messageOr(err, "unauthorized"))
	case errors.Is(err, domain.ErrUnavailable):
		logger.WithError(err).Warn("store unavailable")
		respondError(w, http.StatusServiceUnavailable, domain.ErrCodeServiceUnavailable, "store unavailable, retry later")
	default:
		logger.WithError(err).Error("internal error")
		respondError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
	}
}

// messageOr returns the message of a *domain.Error, or fallback.
func messageOr(err error, fallback string) string {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return derr.Message
	}
	return fallback
}

// decodeJSON decodes JSON from request body.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Invalidf("invalid request body: %v", err)
	}
	return nil
}

// pathParam returns the unescaped chi URL parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// userRefFromQuery reads userId or email from the query string.
func userRefFromQuery(r *http.Request) (domain.UserRef, error) {
	q := r.URL.Query()
	return validation.ValidateUserRef(q.Get("userId"), q.Get("email"))
}

// callerEmail returns the acting user's email for self-service endpoints.
func callerEmail(r *http.Request) (string, error) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil || p.Email == "" {
		return "", &domain.Error{
			Kind:    domain.ErrUnauthorized,
			Message: "caller identity required: log in or send the " + middleware.UserEmailHeader + " header",
		}
	}
	return validation.NormalizeEmail(middleware.UserEmailHeader, p.Email)
}

// nonNil turns a nil slice into an empty one so it encodes as [].
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// generateID generates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new random API key.
func generateAPIKey() (key string, hash string, prefix string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}

	key = "aam_" + hex.EncodeToString(b)
	hash = middleware.HashAPIKey(key)
	prefix = key[:12] // "aam_" + first 8 chars of hex

	return key, hash, prefix, nil
}
