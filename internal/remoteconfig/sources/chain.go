package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig"
)

// Static always returns the same values
type Static map[string]float64

// Fetch returns a copy of the values
func (s Static) Fetch(context.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

// Named attaches a label to a fetcher for logging
type Named struct {
	Name    string
	Fetcher remoteconfig.Fetcher
}

// Chain tries each source in order; the first success wins
type Chain []Named

// Fetch returns the first successful result, or all errors joined
func (c Chain) Fetch(ctx context.Context) (map[string]float64, error) {
	if len(c) == 0 {
		return nil, fmt.Errorf("%w: no sources", remoteconfig.ErrFetchUnavailable)
	}

	var errs []error
	for _, src := range c {
		values, err := src.Fetcher.Fetch(ctx)
		if err == nil {
			return values, nil
		}
		log.Warn().Err(err).Str("source", src.Name).Msg("Config source failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}
