package ads

import (
	"context"
	"errors"
)

// Ad is one loaded ad unit instance
type Ad interface {
	CanShow() bool
	Show() error
	Destroy()
}

// SDK loads ads from the vendor. Load blocks until the ad is loaded or fails.
type SDK interface {
	Load(ctx context.Context, format Format, unitID string) (Ad, error)
}

// EventKind is an SDK callback type
type EventKind string

const (
	EventLoaded     EventKind = "loaded"
	EventLoadFailed EventKind = "load_failed"
	EventOpened     EventKind = "opened"
	EventClosed     EventKind = "closed"
	EventShowFailed EventKind = "show_failed"
	EventPaid       EventKind = "paid"
	EventImpression EventKind = "impression"
	EventClicked    EventKind = "clicked"
)

var eventKinds = map[EventKind]bool{
	EventLoaded:     true,
	EventLoadFailed: true,
	EventOpened:     true,
	EventClosed:     true,
	EventShowFailed: true,
	EventPaid:       true,
	EventImpression: true,
	EventClicked:    true,
}

// Valid reports whether k is a known callback type
func (k EventKind) Valid() bool {
	return eventKinds[k]
}

// Event is an SDK callback delivered to a manager
type Event struct {
	Format    Format    `json:"format"`
	Kind      EventKind `json:"kind"`
	UnitID    string    `json:"unit_id,omitempty"`
	Placement string    `json:"placement,omitempty"`
	Error     string    `json:"error,omitempty"`

	// Paid events only
	ValueMicros int64  `json:"value_micros,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Precision   string `json:"precision,omitempty"`
	AdSource    string `json:"ad_source,omitempty"`
}

// Handler receives SDK callbacks
type Handler interface {
	HandleEvent(Event)
}

// Show errors
var (
	ErrAdsDisabled    = errors.New("ads disabled")
	ErrNotReady       = errors.New("ad not ready")
	ErrShowInProgress = errors.New("ad already showing")
	ErrCooldown       = errors.New("interstitial cooldown active")
	ErrAdStale        = errors.New("ad expired")
	ErrNotConfigured  = errors.New("format not configured")
)
