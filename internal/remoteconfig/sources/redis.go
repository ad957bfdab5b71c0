package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig"
)

// DefaultRedisKey is the hash holding remote config values
const DefaultRedisKey = "adgate:remoteconfig"

// hashReader is the subset of the redis client used here
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisSource reads every field of a Redis hash as a config value
type RedisSource struct {
	client hashReader
	closer func() error
	key    string
}

// NewRedisSource creates a source from a redis:// URL
func NewRedisSource(redisURL, key string) (*RedisSource, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is empty")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("address", opts.Addr).Msg("Redis connection test failed")
		// Don't fail - the fetch falls back to defaults
	} else {
		log.Info().Str("address", opts.Addr).Msg("Redis connected")
	}

	return newRedisSource(client, client.Close, key), nil
}

func newRedisSource(client hashReader, closer func() error, key string) *RedisSource {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSource{client: client, closer: closer, key: key}
}

// Fetch reads the hash
func (s *RedisSource) Fetch(ctx context.Context) (map[string]float64, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis: %v", remoteconfig.ErrFetchUnavailable, err)
	}

	out := make(map[string]float64, len(fields))
	for field, raw := range fields {
		f, ok := parseNumber(raw)
		if !ok {
			log.Warn().Str("field", field).Str("value", raw).Msg("Skipping non-numeric redis config field")
			continue
		}
		out[field] = f
	}
	return out, nil
}

// Close releases the connection pool
func (s *RedisSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// parseNumber accepts numbers and the words true/false
func parseNumber(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
