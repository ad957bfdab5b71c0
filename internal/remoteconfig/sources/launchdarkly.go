package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	ldclient "github.com/launchdarkly/go-server-sdk/v7"
	"github.com/launchdarkly/go-server-sdk/v7/interfaces"
	"github.com/launchdarkly/go-server-sdk/v7/interfaces/flagstate"
	"github.com/rs/zerolog/log"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig"
)

// DefaultContextKey is the evaluation context used when none is configured
const DefaultContextKey = "adgate-client"

// flagSnapshotter is the subset of the LaunchDarkly client used here
type flagSnapshotter interface {
	AllFlagsState(context ldcontext.Context, options ...flagstate.Option) flagstate.AllFlags
}

// LaunchDarklyConfig configures the flag source
type LaunchDarklyConfig struct {
	SDKKey     string
	BaseURI    string // Optional relay or dev-server URL
	ContextKey string
	InitWait   time.Duration
}

// LaunchDarklySource evaluates every flag for one context and uses the
// numeric and boolean results as config values
type LaunchDarklySource struct {
	client  flagSnapshotter
	closer  func() error
	context ldcontext.Context
}

// NewLaunchDarklySource connects to LaunchDarkly (or a relay when BaseURI is set)
func NewLaunchDarklySource(cfg LaunchDarklyConfig) (*LaunchDarklySource, error) {
	if cfg.SDKKey == "" {
		return nil, fmt.Errorf("launchdarkly SDK key is empty")
	}
	if cfg.InitWait == 0 {
		cfg.InitWait = 5 * time.Second
	}

	var client *ldclient.LDClient
	var err error
	if cfg.BaseURI == "" {
		client, err = ldclient.MakeClient(cfg.SDKKey, cfg.InitWait)
	} else {
		conf := ldclient.Config{
			ServiceEndpoints: interfaces.ServiceEndpoints{
				Streaming: cfg.BaseURI,
				Polling:   cfg.BaseURI,
				Events:    cfg.BaseURI,
			},
		}
		client, err = ldclient.MakeCustomClient(cfg.SDKKey, conf, cfg.InitWait)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: launchdarkly: %v", remoteconfig.ErrFetchUnavailable, err)
	}
	if err != nil {
		// The client keeps connecting in the background
		log.Warn().Err(err).Msg("LaunchDarkly client not initialized yet")
	}

	return newLaunchDarklySource(client, client.Close, cfg.ContextKey), nil
}

func newLaunchDarklySource(client flagSnapshotter, closer func() error, contextKey string) *LaunchDarklySource {
	if contextKey == "" {
		contextKey = DefaultContextKey
	}
	return &LaunchDarklySource{
		client:  client,
		closer:  closer,
		context: ldcontext.New(contextKey),
	}
}

// Fetch evaluates all flags
func (s *LaunchDarklySource) Fetch(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", remoteconfig.ErrFetchUnavailable, err)
	}

	state := s.client.AllFlagsState(s.context)
	if !state.IsValid() {
		return nil, fmt.Errorf("%w: launchdarkly flag state invalid", remoteconfig.ErrFetchUnavailable)
	}

	return flagValues(state.ToValuesMap()), nil
}

// Close shuts the client down
func (s *LaunchDarklySource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// flagValues keeps numeric and boolean flags; numeric strings are parsed
func flagValues(flags map[string]ldvalue.Value) map[string]float64 {
	out := make(map[string]float64, len(flags))
	for key, v := range flags {
		switch v.Type() {
		case ldvalue.NumberType:
			out[key] = v.Float64Value()
		case ldvalue.BoolType:
			if v.BoolValue() {
				out[key] = 1
			} else {
				out[key] = 0
			}
		case ldvalue.StringType:
			if f, ok := parseNumber(v.StringValue()); ok {
				out[key] = f
			}
		}
	}
	return out
}
