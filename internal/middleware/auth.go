// Package middleware provides HTTP middleware for the adgate server
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// ClientIDHeader carries the authenticated client name downstream
const ClientIDHeader = "X-Client-ID"

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled     bool
	APIKeys     map[string]string // key -> client name
	HeaderName  string            // Header to check for API key (default: X-API-Key)
	BypassPaths []string          // Paths that don't require auth
}

// NewAuthConfig builds an auth config from "key" or "key:client" entries.
// Auth is enabled when at least one key is given.
func NewAuthConfig(entries []string) *AuthConfig {
	keys := parseAPIKeys(entries)
	return &AuthConfig{
		Enabled:     len(keys) > 0,
		APIKeys:     keys,
		HeaderName:  "X-API-Key",
		BypassPaths: []string{"/health", "/status", "/metrics"},
	}
}

func parseAPIKeys(entries []string) map[string]string {
	keys := make(map[string]string)
	for _, entry := range entries {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		client := "default"
		if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
			client = strings.TrimSpace(parts[1])
		}
		keys[key] = client
	}
	return keys
}

// Auth provides API key authentication middleware
type Auth struct {
	config    *AuthConfig
	onFailure func()
	mu        sync.RWMutex
}

// NewAuth creates a new Auth middleware. onFailure, if set, runs for every
// rejected request.
func NewAuth(config *AuthConfig, onFailure func()) *Auth {
	if config == nil {
		config = NewAuthConfig(nil)
	}
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	if onFailure == nil {
		onFailure = func() {}
	}
	return &Auth{config: config, onFailure: onFailure}
}

// Middleware returns the authentication middleware handler
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.RLock()
		config := a.config
		a.mu.RUnlock()

		if !config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		for _, path := range config.BypassPaths {
			if strings.HasPrefix(r.URL.Path, path) {
				next.ServeHTTP(w, r)
				return
			}
		}

		apiKey := r.Header.Get(config.HeaderName)
		if apiKey == "" {
			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			a.reject(w, r, http.StatusUnauthorized, "missing API key")
			return
		}

		client, valid := a.validateKey(apiKey)
		if !valid {
			a.reject(w, r, http.StatusForbidden, "invalid API key")
			return
		}

		r.Header.Set(ClientIDHeader, client)
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) reject(w http.ResponseWriter, r *http.Request, status int, reason string) {
	a.onFailure()
	log := logger.HTTP()
	log.Warn().
		Str("path", r.URL.Path).
		Str("remote", getClientIP(r)).
		Str("reason", reason).
		Msg("Request rejected by auth")
	http.Error(w, `{"error":"`+reason+`"}`, status)
}

// validateKey checks an API key and returns the associated client name
func (a *Auth) validateKey(key string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for validKey, client := range a.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			return client, true
		}
	}
	return "", false
}

// AddAPIKey adds a new API key at runtime
func (a *Auth) AddAPIKey(key, client string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.config.APIKeys == nil {
		a.config.APIKeys = make(map[string]string)
	}
	a.config.APIKeys[key] = client
	a.config.Enabled = true
}

// RemoveAPIKey removes an API key at runtime
func (a *Auth) RemoveAPIKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.config.APIKeys, key)
}

// IsEnabled returns whether authentication is enabled
func (a *Auth) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.config.Enabled
}
