// Package logger provides structured logging for the adgate service
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey ContextKey = "request_id"
	// SessionIDKey is the context key for game session IDs
	SessionIDKey ContextKey = "session_id"
)

var (
	// Log is the global logger instance
	Log = zerolog.Nop()
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // time format for console output
}

// DefaultConfig returns sensible defaults for production
func DefaultConfig() Config {
	return Config{
		Level:      getEnv("LOG_LEVEL", "info"),
		Format:     getEnv("LOG_FORMAT", "json"),
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global logger
func Init(cfg Config) {
	Log = New(cfg, os.Stdout)
}

// New builds a logger writing to out without touching the global one
func New(cfg Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: cfg.TimeFormat,
		}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "adgate").
		Logger()
}

// WithRequestID adds a request ID to the logger context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSessionID adds a session ID to the logger context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// FromContext returns a logger with context values
func FromContext(ctx context.Context) zerolog.Logger {
	l := Log.With()

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		l = l.Str("request_id", requestID)
	}

	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		l = l.Str("session_id", sessionID)
	}

	return l.Logger()
}

// RemoteConfig returns a logger for remote config events
func RemoteConfig() zerolog.Logger {
	return Log.With().Str("component", "remoteconfig").Logger()
}

// Idle returns a logger for the idle interstitial trigger
func Idle() zerolog.Logger {
	return Log.With().Str("component", "idle").Logger()
}

// Ads returns a logger for a single ad format
func Ads(format string) zerolog.Logger {
	return Log.With().Str("component", "ads").Str("ad_format", format).Logger()
}

// Analytics returns a logger for analytics forwarding
func Analytics() zerolog.Logger {
	return Log.With().Str("component", "analytics").Logger()
}

// HTTP returns a logger for HTTP events
func HTTP() zerolog.Logger {
	return Log.With().Str("component", "http").Logger()
}

// getEnv returns environment variable or default
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// RequestLogger holds request-scoped logging state
type RequestLogger struct {
	logger    zerolog.Logger
	startTime time.Time
}

// NewRequestLogger creates a new request-scoped logger
func NewRequestLogger(requestID string) *RequestLogger {
	return &RequestLogger{
		logger:    HTTP().With().Str("request_id", requestID).Logger(),
		startTime: time.Now(),
	}
}

// WithField adds a field to the logger
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.logger = r.logger.With().Interface(key, value).Logger()
	return r
}

// Duration returns the time since the request started
func (r *RequestLogger) Duration() time.Duration {
	return time.Since(r.startTime)
}

// LogComplete logs request completion with duration
func (r *RequestLogger) LogComplete(status int) {
	r.logger.Info().
		Int("status", status).
		Dur("duration_ms", r.Duration()).
		Msg("request completed")
}
