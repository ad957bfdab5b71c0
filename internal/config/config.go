// Package config loads the adgate server configuration from a TOML file
// with environment overrides
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Remote config source names
const (
	SourceHTTP         = "http"
	SourceRedis        = "redis"
	SourceLaunchDarkly = "launchdarkly"
	SourceStatic       = "static"
)

// Config is the complete server configuration
type Config struct {
	Server       ServerConfig       `toml:"server"`
	RemoteConfig RemoteConfigConfig `toml:"remote_config"`
	Ads          AdsConfig          `toml:"ads"`
	Analytics    AnalyticsConfig    `toml:"analytics"`
	Log          LogConfig          `toml:"log"`
	Metrics      MetricsConfig      `toml:"metrics"`
	RateLimit    RateLimitConfig    `toml:"rate_limit"`
}

// ServerConfig holds HTTP and host loop settings
type ServerConfig struct {
	Port            string   `toml:"port"`
	APIKeys         []string `toml:"api_keys"`
	MaxBodyBytes    int64    `toml:"max_body_bytes"`
	TickInterval    Duration `toml:"tick_interval"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// RemoteConfigConfig selects and configures the remote value sources.
// Sources are tried in order; the first that answers wins.
type RemoteConfigConfig struct {
	Sources      []string           `toml:"sources"`
	FetchTimeout Duration           `toml:"fetch_timeout"`
	ReadyTimeout Duration           `toml:"ready_timeout"`
	SnapshotPath string             `toml:"snapshot_path"`
	HTTP         HTTPSourceConfig   `toml:"http"`
	Redis        RedisSourceConfig  `toml:"redis"`
	LaunchDarkly LaunchDarklyConfig `toml:"launchdarkly"`
	Static       map[string]float64 `toml:"static"`
}

// HTTPSourceConfig configures the JSON endpoint source
type HTTPSourceConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// RedisSourceConfig configures the Redis hash source
type RedisSourceConfig struct {
	URL string `toml:"url"`
	Key string `toml:"key"`
}

// LaunchDarklyConfig configures the feature flag source
type LaunchDarklyConfig struct {
	SDKKey     string   `toml:"sdk_key"`
	BaseURI    string   `toml:"base_uri"`
	ContextKey string   `toml:"context_key"`
	InitWait   Duration `toml:"init_wait"`
}

// AdsConfig configures the ad bridge and unit ids
type AdsConfig struct {
	BridgeURL    string            `toml:"bridge_url"`
	BridgeAPIKey string            `toml:"bridge_api_key"`
	LoadTimeout  Duration          `toml:"load_timeout"`
	NoAds        bool              `toml:"no_ads"`
	Units        map[string]string `toml:"units"`
}

// AnalyticsConfig configures the event collector
type AnalyticsConfig struct {
	CollectorURL  string   `toml:"collector_url"`
	BufferSize    int      `toml:"buffer_size"`
	FlushInterval Duration `toml:"flush_interval"`
}

// LogConfig configures zerolog
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig configures Prometheus
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// RateLimitConfig limits the device-facing endpoints
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			MaxBodyBytes:    64 * 1024,
			TickInterval:    Duration{100 * time.Millisecond},
			ReadTimeout:     Duration{5 * time.Second},
			WriteTimeout:    Duration{10 * time.Second},
			ShutdownTimeout: Duration{30 * time.Second},
		},
		RemoteConfig: RemoteConfigConfig{
			FetchTimeout: Duration{5 * time.Second},
			ReadyTimeout: Duration{5 * time.Second},
			Redis: RedisSourceConfig{
				Key: "adgate:remoteconfig",
			},
			LaunchDarkly: LaunchDarklyConfig{
				ContextKey: "adgate",
				InitWait:   Duration{5 * time.Second},
			},
		},
		Ads: AdsConfig{
			LoadTimeout: Duration{30 * time.Second},
			Units:       map[string]string{},
		},
		Analytics: AnalyticsConfig{
			BufferSize:    100,
			FlushInterval: Duration{30 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "adgate",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

// LoadFromFile reads configuration from path. A missing file yields the
// defaults with environment overrides applied.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader reads configuration from an io.Reader
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys: %v", undecoded)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides checks environment variables and overrides config values
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		cfg.Server.APIKeys = splitList(v)
	}
	if v := os.Getenv("REMOTE_CONFIG_SOURCES"); v != "" {
		cfg.RemoteConfig.Sources = splitList(v)
	}
	if v := os.Getenv("REMOTE_CONFIG_URL"); v != "" {
		cfg.RemoteConfig.HTTP.URL = v
	}
	if v := os.Getenv("REMOTE_CONFIG_API_KEY"); v != "" {
		cfg.RemoteConfig.HTTP.APIKey = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RemoteConfig.Redis.URL = v
	}
	if v := os.Getenv("LD_SDK_KEY"); v != "" {
		cfg.RemoteConfig.LaunchDarkly.SDKKey = v
	}
	if v := os.Getenv("LD_BASE_URI"); v != "" {
		cfg.RemoteConfig.LaunchDarkly.BaseURI = v
	}
	if v := os.Getenv("AD_BRIDGE_URL"); v != "" {
		cfg.Ads.BridgeURL = v
	}
	if v := os.Getenv("AD_BRIDGE_API_KEY"); v != "" {
		cfg.Ads.BridgeAPIKey = v
	}
	if v := os.Getenv("ANALYTICS_URL"); v != "" {
		cfg.Analytics.CollectorURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v, err := strconv.ParseBool(os.Getenv("RATE_LIMIT_ENABLED")); err == nil {
		cfg.RateLimit.Enabled = v
	}
	if v, err := strconv.ParseBool(os.Getenv("NO_ADS")); err == nil {
		cfg.Ads.NoAds = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.TickInterval.Duration <= 0 {
		errs = append(errs, errors.New("server.tick_interval must be positive"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}

	seen := make(map[string]bool)
	for _, s := range c.RemoteConfig.Sources {
		if seen[s] {
			errs = append(errs, fmt.Errorf("remote_config.sources lists %q twice", s))
		}
		seen[s] = true

		switch s {
		case SourceHTTP:
			if c.RemoteConfig.HTTP.URL == "" {
				errs = append(errs, errors.New("remote_config.http.url is required for the http source"))
			}
		case SourceRedis:
			if c.RemoteConfig.Redis.URL == "" {
				errs = append(errs, errors.New("remote_config.redis.url is required for the redis source"))
			}
		case SourceLaunchDarkly:
			if c.RemoteConfig.LaunchDarkly.SDKKey == "" {
				errs = append(errs, errors.New("remote_config.launchdarkly.sdk_key is required for the launchdarkly source"))
			}
		case SourceStatic:
		default:
			errs = append(errs, fmt.Errorf("unknown remote config source %q", s))
		}
	}

	if len(c.Ads.Units) > 0 && c.Ads.BridgeURL == "" {
		errs = append(errs, errors.New("ads.bridge_url is required when ad units are configured"))
	}
	if c.Analytics.BufferSize < 0 {
		errs = append(errs, errors.New("analytics.buffer_size must not be negative"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit requires positive requests_per_second and burst"))
	}

	return errors.Join(errs...)
}
