package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestRevenue(t *testing.T) {
	tests := []struct {
		micros       int64
		currency     string
		wantValue    float64
		wantCurrency string
	}{
		{1_500_000, "EUR", 1.5, "EUR"},
		{250, "", 0.00025, "USD"},
		{0, "JPY", 0, "JPY"},
	}

	for _, tt := range tests {
		value, currency := Revenue(tt.micros, tt.currency)
		if value != tt.wantValue || currency != tt.wantCurrency {
			t.Errorf("Revenue(%d, %q) = %v %s, want %v %s",
				tt.micros, tt.currency, value, currency, tt.wantValue, tt.wantCurrency)
		}
	}
}

func TestAdImpressionParams(t *testing.T) {
	params := AdImpressionParams(PaidEvent{
		Format:    "app_open",
		Micros:    2_000_000,
		Precision: "PRECISE",
	})

	if params["ad_source"] != "admob" {
		t.Errorf("expected default ad_source admob, got %v", params["ad_source"])
	}
	if params["ad_format"] != "app_open" {
		t.Errorf("expected ad_format app_open, got %v", params["ad_format"])
	}
	if params["currency"] != "USD" {
		t.Errorf("expected USD, got %v", params["currency"])
	}
	if params["value"] != 2.0 {
		t.Errorf("expected value 2.0, got %v", params["value"])
	}
	if params["revenue_precision"] != "PRECISE" {
		t.Errorf("expected precision, got %v", params["revenue_precision"])
	}
	if _, ok := params["ad_unit_id"]; ok {
		t.Error("expected empty unit id to be omitted")
	}
}

type collector struct {
	mu     sync.Mutex
	events []Event
	status int
}

func (c *collector) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body struct {
			Events []Event `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode events: %v", err)
		}
		c.mu.Lock()
		c.events = append(c.events, body.Events...)
		status := c.status
		c.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestRecorderFlush(t *testing.T) {
	c := &collector{}
	server := httptest.NewServer(c.handler(t))
	defer server.Close()

	r := NewRecorder(server.URL, 10)
	r.LogEvent("ad_loaded", Params{"ad_format": "banner"})
	r.LogException(errors.New("sdk crashed"), "interstitial.show")
	r.LogException(nil, "ignored")

	if r.Pending() != 2 {
		t.Fatalf("expected 2 pending events, got %d", r.Pending())
	}

	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if r.Pending() != 0 {
		t.Errorf("expected buffer emptied, got %d", r.Pending())
	}
	if c.count() != 2 {
		t.Fatalf("expected 2 events at collector, got %d", c.count())
	}

	first := c.events[0]
	if first.Name != "ad_loaded" || first.SessionID != r.SessionID() || first.ID == "" {
		t.Errorf("unexpected first event %+v", first)
	}
	if c.events[1].Name != ExceptionEvent || c.events[1].Params["message"] != "sdk crashed" {
		t.Errorf("unexpected exception event %+v", c.events[1])
	}
}

func TestRecorderFlushEmptyIsNoop(t *testing.T) {
	r := NewRecorder("http://127.0.0.1:1", 10)
	if err := r.Flush(context.Background()); err != nil {
		t.Errorf("expected nil for empty flush, got %v", err)
	}
}

func TestRecorderAutoFlushWhenFull(t *testing.T) {
	c := &collector{}
	server := httptest.NewServer(c.handler(t))
	defer server.Close()

	r := NewRecorder(server.URL, 3)
	for i := 0; i < 3; i++ {
		r.LogEvent("ad_clicked", nil)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.count() != 3 {
		t.Errorf("expected background flush of 3 events, got %d", c.count())
	}
}

func TestRecorderCollectorError(t *testing.T) {
	c := &collector{status: http.StatusInternalServerError}
	server := httptest.NewServer(c.handler(t))
	defer server.Close()

	r := NewRecorder(server.URL, 10)
	r.LogEvent("ad_loaded", nil)
	if err := r.Close(); err == nil {
		t.Error("expected error for 500 from collector")
	}
}

func TestRecorderAutoFlushFailureKeepsRecording(t *testing.T) {
	c := &collector{status: http.StatusServiceUnavailable}
	server := httptest.NewServer(c.handler(t))
	defer server.Close()

	r := NewRecorder(server.URL, 2)
	r.LogEvent("ad_loaded", nil)
	r.LogEvent("ad_clicked", nil)

	deadline := time.Now().Add(2 * time.Second)
	for c.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.count() != 2 {
		t.Fatalf("expected failed background flush to reach collector, got %d", c.count())
	}

	r.LogEvent("ad_closed", nil)
	if r.Pending() != 1 {
		t.Errorf("expected recorder usable after failed flush, got %d pending", r.Pending())
	}
}

type captureSink struct {
	names []string
	errs  []error
}

func (s *captureSink) LogEvent(name string, _ Params)   { s.names = append(s.names, name) }
func (s *captureSink) LogException(err error, _ string) { s.errs = append(s.errs, err) }

func TestMultiFansOut(t *testing.T) {
	a, b := &captureSink{}, &captureSink{}
	m := Multi{a, b, Nop{}, NewLogSink()}

	m.LogEvent("ad_impression", Params{"value": 1.0})
	m.LogException(errors.New("x"), "test")

	for i, s := range []*captureSink{a, b} {
		if len(s.names) != 1 || len(s.errs) != 1 {
			t.Errorf("sink %d: expected 1 event and 1 exception, got %d/%d", i, len(s.names), len(s.errs))
		}
	}
}
