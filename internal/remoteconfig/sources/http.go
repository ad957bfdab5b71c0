// Package sources provides remote key-value fetchers for the config store
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig"
)

// Maximum config payload size to prevent OOM from malformed responses
const maxConfigResponseSize = 256 * 1024

// HTTPSource fetches a flat JSON object of numbers and booleans
type HTTPSource struct {
	url        string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
}

// NewHTTPSource creates a source reading from url
func NewHTTPSource(url string, timeout time.Duration, apiKey string) *HTTPSource {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Fetch retrieves and decodes the config document
func (s *HTTPSource) Fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", remoteconfig.ErrFetchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: config service returned status %d", remoteconfig.ErrFetchUnavailable, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxConfigResponseSize)
	var doc map[string]interface{}
	if err := json.NewDecoder(limited).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", remoteconfig.ErrInvalidPayload, err)
	}

	return Numbers(doc), nil
}

// Numbers keeps the numeric and boolean entries of doc. Strings holding a
// number are accepted too; anything else is dropped.
func Numbers(doc map[string]interface{}) map[string]float64 {
	out := make(map[string]float64, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case float64:
			out[k] = val
		case bool:
			if val {
				out[k] = 1
			} else {
				out[k] = 0
			}
		case string:
			if f, ok := parseNumber(val); ok {
				out[k] = f
			}
		case json.Number:
			if f, err := val.Float64(); err == nil {
				out[k] = f
			}
		}
	}
	return out
}
