package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// sealer encrypts and authenticates JSON payloads stored in cookies.
type sealer struct {
	codec  *securecookie.SecureCookie
	maxAge int
	secure bool // Use Secure flag on cookies (for HTTPS)
}

// newSealer derives the HMAC and AES keys from a 32-byte secret. Cookies
// older than maxAge are rejected on decode.
func newSealer(key []byte, maxAge time.Duration, secure bool) (*sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("cookie key must be 32 bytes, got %d", len(key))
	}

	hashKey := sha256.Sum256(append([]byte("hmac:"), key...))
	codec := securecookie.New(hashKey[:], key)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(maxAge.Seconds()))

	return &sealer{codec: codec, maxAge: int(maxAge.Seconds()), secure: secure}, nil
}

// seal encodes v into the named cookie.
func (s *sealer) seal(w http.ResponseWriter, name string, v any) error {
	encoded, err := s.codec.Encode(name, v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	http.SetCookie(w, s.cookie(name, encoded, s.maxAge))
	return nil
}

// open reads the named cookie and decodes it into v.
func (s *sealer) open(r *http.Request, name string, v any) error {
	c, err := r.Cookie(name)
	if err != nil {
		return fmt.Errorf("%s cookie not found: %w", name, err)
	}
	if err := s.codec.Decode(name, c.Value, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// clear expires the named cookie.
func (s *sealer) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, s.cookie(name, "", -1))
}

func (s *sealer) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	}
}

// ConstantTimeCompare performs a constant-time comparison of two strings.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
