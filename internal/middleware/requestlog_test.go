package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

func TestRequestLogAssignsID(t *testing.T) {
	var ctxLogger bool
	handler := RequestLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := r.Context().Value(logger.RequestIDKey).(string); ok && id != "" {
			ctxLogger = true
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected generated request id header")
	}
	if !ctxLogger {
		t.Error("expected request id in context")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected status passed through, got %d", rec.Code)
	}
}

func TestRequestLogKeepsClientID(t *testing.T) {
	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	RequestLog(okHandler()).ServeHTTP(rec, req)

	if rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("expected caller request id echoed, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestNoStore(t *testing.T) {
	handler := NoStore(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/config", nil))
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("expected no-store, got %q", rec.Header().Get("Cache-Control"))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Header().Get("Cache-Control") != "" {
		t.Error("expected metrics left cacheable")
	}
}
