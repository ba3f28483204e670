package auth

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// StateCookieName is the name of the login state cookie.
	StateCookieName = "aam_oidc_state"
	// StateTTL is how long a login attempt may take.
	StateTTL = 5 * time.Minute
)

// StateStore manages state and nonce for OIDC CSRF protection.
type StateStore struct {
	sealer *sealer
	now    func() time.Time
}

// StateData holds the state and nonce for an OIDC request, plus where to
// send the caller once login completes.
type StateData struct {
	State     string    `json:"state"`
	Nonce     string    `json:"nonce"`
	ReturnTo  string    `json:"return_to,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewStateStore creates a new state store with encryption.
func NewStateStore(key []byte, secure bool) (*StateStore, error) {
	s, err := newSealer(key, StateTTL, secure)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	return &StateStore{sealer: s, now: time.Now}, nil
}

// Generate creates a new state/nonce pair and stores it in an encrypted cookie.
func (ss *StateStore) Generate(w http.ResponseWriter, returnTo string) (*StateData, error) {
	state, err := GenerateSecureString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	nonce, err := GenerateSecureString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := &StateData{
		State:     state,
		Nonce:     nonce,
		ReturnTo:  returnTo,
		ExpiresAt: ss.now().Add(StateTTL),
	}
	if err := ss.sealer.seal(w, StateCookieName, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Validate retrieves the state cookie and checks it against the state the
// provider echoed back.
func (ss *StateStore) Validate(r *http.Request, state string) (*StateData, error) {
	var data StateData
	if err := ss.sealer.open(r, StateCookieName, &data); err != nil {
		return nil, err
	}
	if ss.now().After(data.ExpiresAt) {
		return nil, fmt.Errorf("state expired")
	}
	if !ConstantTimeCompare(data.State, state) {
		return nil, fmt.Errorf("state mismatch")
	}
	return &data, nil
}

// Clear clears the state cookie.
func (ss *StateStore) Clear(w http.ResponseWriter) {
	ss.sealer.clear(w, StateCookieName)
}
