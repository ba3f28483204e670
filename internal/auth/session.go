package auth

import (
	"fmt"
	"net/http"
	"time"
)

// SessionCookieName is the name of the OIDC session cookie.
const SessionCookieName = "aam_session"

// Session identifies a caller who logged in through OIDC. Only identity is
// kept; provider tokens are discarded after the callback.
type Session struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionManager handles signed and encrypted session cookies.
type SessionManager struct {
	sealer   *sealer
	duration time.Duration
	now      func() time.Time
}

// NewSessionManager creates a new session manager with the given secret.
// The key must be exactly 32 bytes.
func NewSessionManager(key []byte, duration time.Duration, secure bool) (*SessionManager, error) {
	s, err := newSealer(key, duration, secure)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	return &SessionManager{sealer: s, duration: duration, now: time.Now}, nil
}

// Create stamps the session and writes it to the response.
func (sm *SessionManager) Create(w http.ResponseWriter, session *Session) error {
	now := sm.now()
	session.CreatedAt = now
	session.ExpiresAt = now.Add(sm.duration)
	return sm.sealer.seal(w, SessionCookieName, session)
}

// Get retrieves and validates the session from the cookie.
func (sm *SessionManager) Get(r *http.Request) (*Session, error) {
	var session Session
	if err := sm.sealer.open(r, SessionCookieName, &session); err != nil {
		return nil, err
	}
	if sm.now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("session expired")
	}
	if session.Email == "" {
		return nil, fmt.Errorf("session has no email")
	}
	return &session, nil
}

// Clear clears the session cookie.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	sm.sealer.clear(w, SessionCookieName)
}
