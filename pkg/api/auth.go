// API key and bearer token authentication for the API server.

package api

import (
	"crypto/subtle"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// APIKeyHeader is the HTTP header carrying a static API key.
const APIKeyHeader = "X-API-Key"

// apiKeyAuth validates static API keys and, when a secret is configured,
// HS256-signed bearer tokens. Keys can be added and removed while the
// server is running.
type apiKeyAuth struct {
	mu        sync.RWMutex
	keys      map[string]struct{}
	jwtSecret []byte
}

// newAPIKeyAuth builds an authenticator from configuration.
func newAPIKeyAuth(cfg AuthConfig) *apiKeyAuth {
	a := &apiKeyAuth{keys: make(map[string]struct{}, len(cfg.Keys))}
	for _, k := range cfg.Keys {
		if k != "" {
			a.keys[k] = struct{}{}
		}
	}
	if cfg.JWTSecret != "" {
		a.jwtSecret = []byte(cfg.JWTSecret)
	}
	return a
}

// AddKey registers an additional accepted API key.
func (a *apiKeyAuth) AddKey(key string) {
	if key == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys[key] = struct{}{}
}

// RemoveKey revokes an API key.
func (a *apiKeyAuth) RemoveKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.keys, key)
}

// validateKey checks a presented key against the accepted set in constant
// time per candidate.
func (a *apiKeyAuth) validateKey(presented string) bool {
	if presented == "" {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for key := range a.keys {
		if len(key) == len(presented) &&
			subtle.ConstantTimeCompare([]byte(key), []byte(presented)) == 1 {
			return true
		}
	}
	return false
}

// validateJWT checks an HS256 bearer token against the configured secret.
func (a *apiKeyAuth) validateJWT(token string) bool {
	a.mu.RLock()
	secret := a.jwtSecret
	a.mu.RUnlock()
	if len(secret) == 0 {
		return false
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && parsed.Valid
}

// middleware returns the authentication middleware. A request passes if it
// carries a valid API key (header or api_key query parameter) or a valid
// bearer token; otherwise the chain aborts with a 401.
func (a *apiKeyAuth) middleware() Middleware {
	return func(req *Request, res *Response, next func() error) error {
		if key := req.Header(APIKeyHeader); a.validateKey(key) {
			return next()
		}

		if auth := req.Header("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token := strings.TrimPrefix(auth, "Bearer ")
			if a.validateKey(token) || a.validateJWT(token) {
				return next()
			}
		}

		if key := req.QueryValue("api_key"); a.validateKey(key) {
			return next()
		}

		return UnauthorizedError("missing or invalid API key")
	}
}
