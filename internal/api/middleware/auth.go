package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/auth"
	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/sirupsen/logrus"
)

type contextKey string

const principalContextKey contextKey = "principal"

// UserEmailHeader names the acting user for API key callers.
const UserEmailHeader = "X-User-Email"

// BootstrapKeyID is the principal id of requests made with the bootstrap key.
const BootstrapKeyID = "bootstrap"

// Auth creates authentication middleware. A request is authenticated by a
// Bearer API key or, when sessions is not nil, by an OIDC session cookie.
func Auth(store storage.Storage, bootstrapKey string, sessions *auth.SessionManager, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if sessions != nil {
					if session, err := sessions.Get(r); err == nil {
						principal := &domain.Principal{Email: session.Email, Name: session.Name}
						next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
						return
					}
				}
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing authorization header")
				return
			}

			apiKey, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid authorization header format")
				return
			}
			if apiKey = strings.TrimSpace(apiKey); apiKey == "" {
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "empty API key")
				return
			}

			keyID, err := resolveAPIKey(ctx, store, bootstrapKey, apiKey, logger)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrInvalidAPIKey):
					writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid API key")
				case errors.Is(err, domain.ErrUnavailable):
					logger.WithError(err).Warn("api key lookup: store unavailable")
					writeError(w, http.StatusServiceUnavailable, domain.ErrCodeServiceUnavailable, "store unavailable")
				default:
					logger.WithError(err).Error("api key lookup failed")
					writeError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
				}
				return
			}

			principal := &domain.Principal{
				APIKeyID: keyID,
				Email:    strings.TrimSpace(r.Header.Get(UserEmailHeader)),
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}

// resolveAPIKey returns the id of the key, or ErrInvalidAPIKey.
func resolveAPIKey(ctx context.Context, store storage.Storage, bootstrapKey, apiKey string, logger logrus.FieldLogger) (string, error) {
	if bootstrapKey != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(bootstrapKey)) == 1 {
		// The bootstrap key only works until the first real key exists.
		count, err := store.CountAPIKeys(ctx)
		if err != nil {
			return "", err
		}
		if count == 0 {
			return BootstrapKeyID, nil
		}
		return "", domain.ErrInvalidAPIKey
	}

	stored, err := store.GetAPIKeyByHash(ctx, HashAPIKey(apiKey))
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrInvalidAPIKey
	}
	if err != nil {
		return "", err
	}

	go func(id string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			logger.WithError(err).WithField("api_key_id", id).Debug("updating api key last use")
		}
	}(stored.ID)

	return stored.ID, nil
}

// HashAPIKey creates a SHA-256 hash of the API key.
// SHA-256 is enough here since API keys are already high-entropy random strings.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the authenticated caller from the request context.
func PrincipalFromContext(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalContextKey).(*domain.Principal)
	return p
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(domain.StandardErrorResponse{
		Error: domain.StandardError{Code: code, Message: message},
	})
}
