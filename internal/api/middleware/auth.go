package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/covergen/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefixLen = 8

// Auth validates the shared bearer token used by the job producers.
type Auth struct {
	token     []byte
	tokenHash []byte
}

// NewAuth creates a new Auth middleware. When tokenHash is set the bearer
// token is compared against the bcrypt hash and token is ignored.
func NewAuth(token, tokenHash string) *Auth {
	a := &Auth{}
	if tokenHash != "" {
		a.tokenHash = []byte(tokenHash)
	} else if token != "" {
		a.token = []byte(token)
	}
	return a
}

// Authenticate validates the Bearer token and sets key_prefix in the request
// context for rate limiting.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if !a.matches(rawKey) {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		prefix := rawKey
		if len(prefix) > keyPrefixLen {
			prefix = prefix[:keyPrefixLen]
		}
		next.ServeHTTP(w, r.WithContext(setKeyPrefix(r.Context(), prefix)))
	})
}

func (a *Auth) matches(rawKey string) bool {
	switch {
	case a.tokenHash != nil:
		return bcrypt.CompareHashAndPassword(a.tokenHash, []byte(rawKey)) == nil
	case a.token != nil:
		return subtle.ConstantTimeCompare(a.token, []byte(rawKey)) == 1
	default:
		return false
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
