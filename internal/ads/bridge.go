package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// Maximum bridge response size
const maxBridgeResponseSize = 64 * 1024

// Bridge is an SDK that drives a device-side ad bridge over HTTP. Callbacks
// from the bridge come back through POST /ads/events.
type Bridge struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
}

// NewBridge creates a bridge client. Loads can take several seconds on a
// cold SDK so the default timeout is generous.
func NewBridge(baseURL string, timeout time.Duration, apiKey string) *Bridge {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Bridge{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

type loadRequest struct {
	Format Format `json:"format"`
	UnitID string `json:"unit_id"`
}

type loadResponse struct {
	AdID    string `json:"ad_id"`
	CanShow bool   `json:"can_show"`
	Error   string `json:"error,omitempty"`
}

// Load asks the bridge to load an ad for unitID
func (b *Bridge) Load(ctx context.Context, format Format, unitID string) (Ad, error) {
	var resp loadResponse
	if err := b.post(ctx, "/ads/load", loadRequest{Format: format, UnitID: unitID}, &resp); err != nil {
		return nil, err
	}
	if resp.AdID == "" {
		if resp.Error != "" {
			return nil, fmt.Errorf("bridge load failed: %s", resp.Error)
		}
		return nil, fmt.Errorf("bridge returned no ad id")
	}
	return &bridgeAd{bridge: b, id: resp.AdID, format: format, canShow: resp.CanShow}, nil
}

// HealthCheck checks if the bridge is reachable
func (b *Bridge) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ad bridge unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (b *Bridge) post(ctx context.Context, path string, in, out interface{}) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call ad bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ad bridge returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}

	limitedReader := io.LimitReader(resp.Body, maxBridgeResponseSize)
	if err := json.NewDecoder(limitedReader).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// bridgeAd is an ad held by the bridge
type bridgeAd struct {
	bridge *Bridge
	id     string
	format Format

	mu        sync.Mutex
	canShow   bool
	destroyed bool
}

func (a *bridgeAd) CanShow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canShow && !a.destroyed
}

func (a *bridgeAd) Show() error {
	a.mu.Lock()
	a.canShow = false
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.bridge.timeout)
	defer cancel()
	return a.bridge.post(ctx, "/ads/"+url.PathEscape(a.id)+"/show", nil, nil)
}

func (a *bridgeAd) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.bridge.timeout)
	defer cancel()
	if err := a.bridge.post(ctx, "/ads/"+url.PathEscape(a.id)+"/destroy", nil, nil); err != nil {
		log := logger.Ads(string(a.format))
		log.Warn().Err(err).Str("ad_id", a.id).Msg("Failed to destroy ad")
	}
}
