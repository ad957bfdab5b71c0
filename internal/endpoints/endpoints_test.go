package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/ads"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/idle"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig"
)

// inline runs commands on the calling goroutine
type inline struct{}

func (inline) Do(_ context.Context, fn func()) error {
	fn()
	return nil
}

type stoppedLoop struct{}

func (stoppedLoop) Do(ctx context.Context, _ func()) error {
	return context.Canceled
}

type stubAd struct {
	mu    sync.Mutex
	shows int
}

func (a *stubAd) CanShow() bool { return true }
func (a *stubAd) Destroy()      {}
func (a *stubAd) Show() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shows++
	return nil
}

type stubSDK struct {
	err error
}

func (s stubSDK) Load(context.Context, ads.Format, string) (ads.Ad, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &stubAd{}, nil
}

type latch struct {
	mu    sync.Mutex
	count int
}

func (l *latch) Interact() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
}

func readyStore(t *testing.T) *remoteconfig.Store {
	t.Helper()
	store := remoteconfig.NewStore(remoteconfig.DefaultCatalogue(), nil)
	store.BeginFetch(context.Background())
	if !store.IsReady() {
		t.Fatal("expected store ready without a source")
	}
	return store
}

func newRouter(t *testing.T, store *remoteconfig.Store, sdk ads.SDK) *ads.Router {
	t.Helper()
	router, err := ads.NewRouter(ads.RouterConfig{
		Units: ads.Units{
			ads.FormatInterstitial: "inter-unit",
			ads.FormatAppOpen:      "open-unit",
			ads.FormatBanner:       "banner-unit",
		},
	}, ads.Deps{SDK: sdk, Gate: ads.NewGate(store)})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}
	return router
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func post(handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestStatusHandler(t *testing.T) {
	store := readyStore(t)
	trigger := idle.New(idle.DefaultConfig(), nil)
	trigger.Tick(5*time.Second, false)

	handler := NewStatusHandler(store, trigger, newRouter(t, store, stubSDK{err: errors.New("no fill")}))
	handler.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Status != "ok" || !resp.Config.Ready || resp.Config.State != "ready" {
		t.Errorf("Expected ready status, got %+v", resp)
	}
	if resp.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("Expected fixed timestamp, got %s", resp.Timestamp)
	}
	if resp.Idle == nil || resp.Idle.ElapsedSeconds != 5 || resp.Idle.ThresholdSeconds != 30 {
		t.Errorf("Expected idle elapsed 5 of 30, got %+v", resp.Idle)
	}
	if resp.Ads == nil || !resp.Ads.CanShowAds {
		t.Fatalf("Expected ads shown, got %+v", resp.Ads)
	}
	if resp.Ads.Interstitial == nil || resp.Ads.AppOpen == nil {
		t.Error("Expected fullscreen formats in status")
	}
	if _, ok := resp.Ads.Banners["banner"]; !ok || len(resp.Ads.Banners) != 1 {
		t.Errorf("Expected one banner entry, got %v", resp.Ads.Banners)
	}
}

func TestStatusHandlerStarting(t *testing.T) {
	store := remoteconfig.NewStore(remoteconfig.DefaultCatalogue(), nil)
	handler := NewStatusHandler(store, nil, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Status != "starting" || resp.Config.State != "pending" {
		t.Errorf("Expected starting/pending, got %s/%s", resp.Status, resp.Config.State)
	}
	if resp.Idle != nil || resp.Ads != nil {
		t.Error("Expected idle and ads omitted when not wired")
	}
}

func TestStatusHandlerMethodNotAllowed(t *testing.T) {
	handler := NewStatusHandler(readyStore(t), nil, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/status", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestConfigHandler(t *testing.T) {
	handler := NewConfigHandler(readyStore(t))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	var resp ConfigResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !resp.Ready {
		t.Error("Expected ready")
	}
	if len(resp.Values) != remoteconfig.DefaultCatalogue().Len() {
		t.Errorf("Expected %d values, got %d", remoteconfig.DefaultCatalogue().Len(), len(resp.Values))
	}
}

func TestConfigHandlerSingleKey(t *testing.T) {
	handler := NewConfigHandler(readyStore(t))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config?key=idle_time", nil))

	var resp ConfigResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(resp.Values) != 1 {
		t.Fatalf("Expected 1 value, got %d", len(resp.Values))
	}
	v := resp.Values[0]
	if v.Key != remoteconfig.KeyIdleTime || v.Current != 30 || v.Source != remoteconfig.SourceDefault {
		t.Errorf("Expected idle_time=30 from defaults, got %+v", v)
	}
}

func TestInteractHandler(t *testing.T) {
	l := &latch{}
	handler := NewInteractHandler(l)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/interact", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/interact", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}

	if l.count != 1 {
		t.Errorf("Expected 1 interaction, got %d", l.count)
	}
}

func TestAdsEvents(t *testing.T) {
	store := readyStore(t)
	h := NewAdsHandler(newRouter(t, store, stubSDK{err: errors.New("no fill")}), inline{})

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
	}{
		{"valid click", ads.Event{Format: ads.FormatBanner, Kind: ads.EventClicked}, http.StatusAccepted},
		{"paid", ads.Event{Format: ads.FormatInterstitial, Kind: ads.EventPaid, ValueMicros: 1500, Currency: "USD"}, http.StatusAccepted},
		{"missing kind", map[string]string{"format": "banner"}, http.StatusBadRequest},
		{"unknown kind", map[string]string{"format": "banner", "kind": "exploded"}, http.StatusBadRequest},
		{"unmanaged format", ads.Event{Format: ads.FormatNative, Kind: ads.EventClicked}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(h.Events, "/ads/events", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d (%s)", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestAdsEventsInvalidJSON(t *testing.T) {
	h := NewAdsHandler(newRouter(t, readyStore(t), stubSDK{}), inline{})

	req := httptest.NewRequest(http.MethodPost, "/ads/events", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.Events(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestShowInterstitialNotReady(t *testing.T) {
	h := NewAdsHandler(newRouter(t, readyStore(t), stubSDK{err: errors.New("no fill")}), inline{})

	w := post(h.ShowInterstitial, "/ads/interstitial/show", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", w.Code)
	}

	var resp ShowResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Shown || resp.Error != ads.ErrNotReady.Error() {
		t.Errorf("Expected not ready error, got %+v", resp)
	}
}

func TestShowInterstitialLoaded(t *testing.T) {
	router := newRouter(t, readyStore(t), stubSDK{})
	router.Start(context.Background())
	waitFor(t, router.Interstitial().IsReady)

	h := NewAdsHandler(router, inline{})
	w := post(h.ShowInterstitial, "/ads/interstitial/show", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if !router.Interstitial().Showing() {
		t.Error("Expected interstitial showing")
	}

	w = post(h.ShowInterstitial, "/ads/interstitial/show", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 while showing, got %d", w.Code)
	}

	w = post(h.Events, "/ads/events", ads.Event{Format: ads.FormatInterstitial, Kind: ads.EventClosed})
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected 202 for close event, got %d", w.Code)
	}
	if router.Interstitial().Showing() {
		t.Error("Expected show finished after close")
	}
}

func TestShowInterstitialNotConfigured(t *testing.T) {
	router, err := ads.NewRouter(ads.RouterConfig{}, ads.Deps{SDK: stubSDK{}, Gate: ads.NewGate(readyStore(t))})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := NewAdsHandler(router, inline{})

	w := post(h.ShowInterstitial, "/ads/interstitial/show", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	w = post(h.Foreground, "/app/foreground", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for foreground without app open, got %d", w.Code)
	}
}

func TestNoAdsDisablesShows(t *testing.T) {
	router := newRouter(t, readyStore(t), stubSDK{})
	h := NewAdsHandler(router, inline{})

	w := post(h.NoAds, "/ads/noads", NoAdsRequest{Purchased: true})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !router.Gate().NoAds() {
		t.Fatal("Expected no-ads applied")
	}

	w = post(h.ShowInterstitial, "/ads/interstitial/show", nil)
	var resp ShowResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusConflict || resp.Error != ads.ErrAdsDisabled.Error() {
		t.Errorf("Expected 409 ads disabled, got %d %+v", w.Code, resp)
	}
}

func TestShowHideBanner(t *testing.T) {
	router := newRouter(t, readyStore(t), stubSDK{})
	h := NewAdsHandler(router, inline{})
	banner := router.Banner(ads.FormatBanner)

	w := post(h.ShowBanner, "/ads/banner/show", BannerRequest{Format: "banner"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	var resp BannerResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Visible || resp.Format != ads.FormatBanner {
		t.Errorf("Expected visible banner, got %+v", resp)
	}
	waitFor(t, banner.Loaded)

	w = post(h.HideBanner, "/ads/banner/hide", BannerRequest{Format: "banner"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if banner.Visible() || banner.Loaded() {
		t.Error("Expected banner hidden and released")
	}
}

func TestBannerRequestErrors(t *testing.T) {
	h := NewAdsHandler(newRouter(t, readyStore(t), stubSDK{}), inline{})

	tests := []struct {
		name   string
		format string
		want   int
	}{
		{"unknown format", "popup", http.StatusBadRequest},
		{"fullscreen format", "interstitial", http.StatusBadRequest},
		{"not configured", "native", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(h.ShowBanner, "/ads/banner/show", BannerRequest{Format: tt.format})
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestNoAdsClearedRestoresBanner(t *testing.T) {
	router := newRouter(t, readyStore(t), stubSDK{})
	h := NewAdsHandler(router, inline{})
	banner := router.Banner(ads.FormatBanner)

	post(h.ShowBanner, "/ads/banner/show", BannerRequest{Format: "banner"})
	waitFor(t, banner.Loaded)

	post(h.NoAds, "/ads/noads", NoAdsRequest{Purchased: true})
	if banner.Loaded() {
		t.Fatal("Expected banner hidden by purchase")
	}
	w := post(h.ShowBanner, "/ads/banner/show", BannerRequest{Format: "banner"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 during purchase, got %d", w.Code)
	}

	post(h.NoAds, "/ads/noads", NoAdsRequest{Purchased: false})
	waitFor(t, banner.Loaded)
}

func TestForegroundBeforeFirstShow(t *testing.T) {
	h := NewAdsHandler(newRouter(t, readyStore(t), stubSDK{}), inline{})

	w := post(h.Foreground, "/app/foreground", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp ShowResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Shown {
		t.Error("Expected no show before first open")
	}
}

func TestLoopUnavailable(t *testing.T) {
	h := NewAdsHandler(newRouter(t, readyStore(t), stubSDK{}), stoppedLoop{})

	w := post(h.NoAds, "/ads/noads", NoAdsRequest{Purchased: true})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestRegisterRoutes(t *testing.T) {
	mux := http.NewServeMux()
	NewAdsHandler(newRouter(t, readyStore(t), stubSDK{}), inline{}).Register(mux)

	for _, path := range []string{"/ads/events", "/ads/interstitial/show", "/ads/banner/show", "/ads/banner/hide", "/ads/noads", "/app/foreground"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405 for GET, got %d", path, w.Code)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}
