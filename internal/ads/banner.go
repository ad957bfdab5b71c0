package ads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// BannerRetryDelay is the wait before reloading after a failed load
const BannerRetryDelay = 5 * time.Second

// Banner manages an inline unit: banner, collapsible, rectangle or native.
// A visible banner is shown as soon as it loads.
type Banner struct {
	format Format
	deps   Deps
	unitID string
	report reporter
	log    zerolog.Logger
	spawn  func(func())

	mu      sync.Mutex
	ad      Ad
	loading bool
	visible bool
	retryAt time.Time
}

// NewBanner creates a manager for an inline format
func NewBanner(format Format, unitID string, deps Deps) (*Banner, error) {
	if format.Fullscreen() {
		return nil, fmt.Errorf("%s is not an inline format", format)
	}
	deps = deps.withDefaults()
	log := logger.Ads(string(format))
	return &Banner{
		format: format,
		deps:   deps,
		unitID: unitID,
		report: reporter{format: format, sink: deps.Sink, observer: deps.Observer, log: log},
		log:    log,
		spawn:  func(fn func()) { go fn() },
	}, nil
}

// Format returns the managed format
func (m *Banner) Format() Format {
	return m.format
}

// LoadAndShow makes the banner visible, loading it first when needed
func (m *Banner) LoadAndShow(ctx context.Context) {
	if !m.deps.Gate.Allows(m.format) {
		m.log.Debug().Msg("Format disabled, skipping load")
		return
	}

	m.mu.Lock()
	m.visible = true
	if m.ad != nil {
		ad := m.ad
		m.mu.Unlock()
		m.display(ad)
		return
	}
	if m.loading {
		m.mu.Unlock()
		return
	}
	m.loading = true
	m.retryAt = time.Time{}
	m.mu.Unlock()

	m.spawn(func() {
		ad, err := m.deps.SDK.Load(ctx, m.format, m.unitID)
		m.deps.Dispatcher.Post(func() { m.loaded(ad, err) })
	})
}

func (m *Banner) loaded(ad Ad, err error) {
	m.mu.Lock()
	m.loading = false
	if err != nil || ad == nil {
		if err == nil {
			err = ErrNotReady
		}
		m.retryAt = m.deps.Now().Add(BannerRetryDelay)
		m.mu.Unlock()

		m.log.Warn().Err(err).Dur("retry_in", BannerRetryDelay).Msg("Banner load failed")
		m.report.event(Event{Kind: EventLoadFailed, UnitID: m.unitID, Error: errorText(err)})
		m.deps.Observer.ObserveLoadRetry(string(m.format))
		return
	}
	if !m.visible {
		// hidden while loading
		m.mu.Unlock()
		ad.Destroy()
		return
	}
	m.ad = ad
	m.mu.Unlock()

	m.report.event(Event{Kind: EventLoaded, UnitID: m.unitID})
	m.display(ad)
}

func (m *Banner) display(ad Ad) {
	defer func() {
		if r := recover(); r != nil {
			m.report.exception(fmt.Errorf("banner show panicked: %v", r), string(m.format)+".show")
		}
	}()
	if err := ad.Show(); err != nil {
		m.report.exception(err, string(m.format)+".show")
	}
}

// Update runs the scheduled load retry while the banner is still wanted
func (m *Banner) Update(now time.Time) {
	m.mu.Lock()
	due := !m.retryAt.IsZero() && !now.Before(m.retryAt)
	if due {
		m.retryAt = time.Time{}
	}
	visible := m.visible
	m.mu.Unlock()

	if due && visible && m.deps.Gate.CanShowAds() {
		m.log.Debug().Msg("Retrying banner load")
		m.LoadAndShow(context.Background())
	}
}

// Hide destroys the banner and cancels any retry
func (m *Banner) Hide() {
	m.mu.Lock()
	ad := m.ad
	m.ad = nil
	m.visible = false
	m.retryAt = time.Time{}
	m.mu.Unlock()

	if ad != nil {
		ad.Destroy()
	}
}

// Loaded reports whether an ad is held
func (m *Banner) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ad != nil
}

// Visible reports whether the banner is meant to be on screen
func (m *Banner) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// RetryPending reports whether a load retry is scheduled
func (m *Banner) RetryPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.retryAt.IsZero()
}

// HandleEvent forwards an SDK callback to analytics
func (m *Banner) HandleEvent(e Event) {
	e.Format = m.format
	if e.UnitID == "" {
		e.UnitID = m.unitID
	}
	m.report.event(e)
}
