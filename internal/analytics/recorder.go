package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// ExceptionEvent is the event name used for reported exceptions
const ExceptionEvent = "app_exception"

// Event is one buffered analytics event
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Params    Params    `json:"params,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder buffers events and posts them to a collector
type Recorder struct {
	baseURL    string
	httpClient *http.Client
	sessionID  string
	now        func() time.Time

	mu         sync.Mutex
	buffer     []Event
	bufferSize int
}

// NewRecorder creates a new event recorder
func NewRecorder(baseURL string, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Recorder{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		sessionID:  uuid.NewString(),
		now:        time.Now,
		buffer:     make([]Event, 0, bufferSize),
		bufferSize: bufferSize,
	}
}

// SessionID returns the id attached to every event of this process
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// LogEvent buffers an event and flushes in the background when full
func (r *Recorder) LogEvent(name string, params Params) {
	event := Event{
		ID:        uuid.NewString(),
		SessionID: r.sessionID,
		Name:      name,
		Params:    params,
		Timestamp: r.now().UTC(),
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, event)
	full := len(r.buffer) >= r.bufferSize
	r.mu.Unlock()

	if full {
		go func() {
			if err := r.Flush(context.Background()); err != nil {
				log := logger.Analytics()
				log.Warn().Err(err).Msg("Background analytics flush failed")
			}
		}()
	}
}

// LogException records an exception as an event
func (r *Recorder) LogException(err error, where string) {
	if err == nil {
		return
	}
	r.LogEvent(ExceptionEvent, Params{
		"message": err.Error(),
		"where":   where,
	})
}

// Pending returns the number of buffered events
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// Flush sends buffered events to the collector. Events are dropped on failure.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return nil
	}
	events := r.buffer
	r.buffer = make([]Event, 0, r.bufferSize)
	r.mu.Unlock()

	body, err := json.Marshal(map[string]interface{}{
		"events": events,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	url := r.baseURL + "/api/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("analytics collector returned status %d", resp.StatusCode)
	}

	return nil
}

// Close flushes remaining events
func (r *Recorder) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Flush(ctx)
}
