// Package endpoints provides HTTP endpoint handlers
package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Executor runs fn on the host loop and waits for it. *host.Loop satisfies it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// onLoop runs fn on the host loop. It writes 503 and returns false when the
// loop did not pick the work up before the request ended.
func onLoop(w http.ResponseWriter, r *http.Request, exec Executor, fn func()) bool {
	if err := exec.Do(r.Context(), fn); err != nil {
		writeError(w, "host loop unavailable", http.StatusServiceUnavailable)
		return false
	}
	return true
}

