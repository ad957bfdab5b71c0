package middleware

import (
	"net/http"
)

// SizeLimitConfig holds request size limit configuration
type SizeLimitConfig struct {
	MaxBodySize  int64 // Max request body size in bytes
	MaxURLLength int   // Max URL length
}

// SizeLimiter rejects oversized requests before they reach a handler
type SizeLimiter struct {
	config SizeLimitConfig
}

// NewSizeLimiter creates a new size limiter. Zero limits fall back to 64KB
// bodies and 2KB URLs.
func NewSizeLimiter(config SizeLimitConfig) *SizeLimiter {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 64 * 1024
	}
	if config.MaxURLLength <= 0 {
		config.MaxURLLength = 2048
	}
	return &SizeLimiter{config: config}
}

// Middleware returns the size limiting middleware handler
func (sl *SizeLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.String()) > sl.config.MaxURLLength {
			http.Error(w, `{"error":"URL too long"}`, http.StatusRequestURITooLong)
			return
		}

		if r.ContentLength > sl.config.MaxBodySize {
			http.Error(w, `{"error":"request body too large"}`, http.StatusRequestEntityTooLarge)
			return
		}

		// Chunked bodies are capped while they are read
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, sl.config.MaxBodySize)
		}

		next.ServeHTTP(w, r)
	})
}

// MaxBodySize returns the configured body limit
func (sl *SizeLimiter) MaxBodySize() int64 {
	return sl.config.MaxBodySize
}
