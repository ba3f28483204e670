package domain

import "time"

// APIKey authenticates admin automation. Only the SHA-256 hash is stored;
// the plaintext key is returned once, on creation.
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	KeyHash    string     `json:"-" db:"key_hash"`
	KeyPrefix  string     `json:"keyPrefix" db:"key_prefix"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" db:"last_used_at"`
}

// CreateAPIKeyRequest is the request body for creating an API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// CreateAPIKeyResponse is returned when creating an API key.
type CreateAPIKeyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	KeyPrefix string    `json:"keyPrefix"`
	CreatedAt time.Time `json:"createdAt"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	// APIKeyID is set for API key callers ("bootstrap" for the bootstrap key).
	APIKeyID string `json:"apiKeyId,omitempty"`
	// Email is the acting user: the OIDC session email, or the
	// X-User-Email header supplied by an API key caller.
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}
