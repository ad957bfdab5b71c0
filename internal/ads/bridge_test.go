package ads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestBridgeLoadShowDestroy(t *testing.T) {
	var mu sync.Mutex
	var paths []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-API-Key") != "bridge-key" {
			t.Errorf("expected X-API-Key header, got %q", r.Header.Get("X-API-Key"))
		}
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		if r.URL.Path == "/ads/load" {
			var req loadRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			if req.Format != FormatInterstitial || req.UnitID != "unit-1" {
				t.Errorf("unexpected load request %+v", req)
			}
			json.NewEncoder(w).Encode(loadResponse{AdID: "ad-42", CanShow: true})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	b := NewBridge(server.URL, time.Second, "bridge-key")
	ad, err := b.Load(context.Background(), FormatInterstitial, "unit-1")
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if !ad.CanShow() {
		t.Fatal("expected loaded ad showable")
	}

	if err := ad.Show(); err != nil {
		t.Fatalf("unexpected show error: %v", err)
	}
	if ad.CanShow() {
		t.Error("expected ad spent after show")
	}

	ad.Destroy()
	ad.Destroy()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"/ads/load", "/ads/ad-42/show", "/ads/ad-42/destroy"}
	if !equal(paths, want) {
		t.Errorf("expected calls %v, got %v", want, paths)
	}
}

func TestBridgeDestroyFailure(t *testing.T) {
	var mu sync.Mutex
	destroys := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ads/load":
			json.NewEncoder(w).Encode(loadResponse{AdID: "ad-7", CanShow: true})
		case "/ads/ad-7/destroy":
			mu.Lock()
			destroys++
			mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	b := NewBridge(server.URL, time.Second, "")
	ad, err := b.Load(context.Background(), FormatRectangleBanner, "unit")
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	ad.Destroy()
	ad.Destroy()

	mu.Lock()
	defer mu.Unlock()
	if destroys != 1 {
		t.Errorf("expected one destroy attempt despite failure, got %d", destroys)
	}
	if ad.CanShow() {
		t.Error("expected destroyed ad not showable")
	}
}

func TestBridgeNoFill(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(loadResponse{Error: "no fill"})
	}))
	defer server.Close()

	b := NewBridge(server.URL, time.Second, "")
	if _, err := b.Load(context.Background(), FormatBanner, "unit"); err == nil {
		t.Error("expected error for no fill")
	}
}

func TestBridgeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	b := NewBridge(server.URL, time.Second, "")
	if _, err := b.Load(context.Background(), FormatBanner, "unit"); err == nil {
		t.Error("expected error for 502")
	}
	if err := b.HealthCheck(context.Background()); err == nil {
		t.Error("expected unhealthy bridge")
	}
}

func TestNewBridgeDefaultTimeout(t *testing.T) {
	b := NewBridge("http://localhost", 0, "")
	if b.timeout != 30*time.Second {
		t.Errorf("expected default 30s timeout, got %v", b.timeout)
	}
}
