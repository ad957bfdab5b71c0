package ads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// AppOpenFreshness is how long a loaded app-open ad stays showable
const AppOpenFreshness = 4 * time.Hour

// Show reasons
const (
	ReasonFirstOpen  = "first_open"
	ReasonForeground = "foreground"
	ReasonManual     = "manual"
)

// AppOpen manages the app-open unit: one automatic show at startup, then a
// show each time the app returns to the foreground
type AppOpen struct {
	deps       Deps
	unitID     string
	startDelay func() time.Duration
	started    time.Time
	report     reporter
	log        zerolog.Logger
	spawn      func(func())

	mu            sync.Mutex
	ad            Ad
	loadedAt      time.Time
	loading       bool
	showing       bool
	firstShowDone bool
}

// NewAppOpen creates the app-open manager. startDelay is the loading window
// after which the first-open show happens.
func NewAppOpen(unitID string, startDelay func() time.Duration, deps Deps) *AppOpen {
	deps = deps.withDefaults()
	log := logger.Ads(string(FormatAppOpen))
	if startDelay == nil {
		startDelay = func() time.Duration { return 0 }
	}
	return &AppOpen{
		deps:       deps,
		unitID:     unitID,
		startDelay: startDelay,
		started:    deps.Now(),
		report:     reporter{format: FormatAppOpen, sink: deps.Sink, observer: deps.Observer, log: log},
		log:        log,
		spawn:      func(fn func()) { go fn() },
	}
}

// Load replaces any held ad with a fresh one
func (m *AppOpen) Load(ctx context.Context) {
	if !m.deps.Gate.Allows(FormatAppOpen) {
		m.log.Debug().Msg("App open disabled, skipping load")
		return
	}

	m.mu.Lock()
	if m.loading {
		m.mu.Unlock()
		return
	}
	old := m.ad
	m.ad = nil
	m.loading = true
	m.mu.Unlock()

	if old != nil {
		old.Destroy()
	}

	m.spawn(func() {
		ad, err := m.deps.SDK.Load(ctx, FormatAppOpen, m.unitID)
		m.deps.Dispatcher.Post(func() { m.loaded(ad, err) })
	})
}

func (m *AppOpen) loaded(ad Ad, err error) {
	m.mu.Lock()
	m.loading = false
	if err != nil || ad == nil {
		m.mu.Unlock()
		if err == nil {
			err = ErrNotReady
		}
		m.log.Warn().Err(err).Msg("App open load failed")
		m.report.event(Event{Kind: EventLoadFailed, UnitID: m.unitID, Error: errorText(err)})
		return
	}
	m.ad = ad
	m.loadedAt = m.deps.Now()
	m.mu.Unlock()

	m.log.Debug().Msg("App open loaded")
	m.report.event(Event{Kind: EventLoaded, UnitID: m.unitID})
}

// IsFresh reports whether the held ad is younger than AppOpenFreshness
func (m *AppOpen) IsFresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fresh(m.deps.Now())
}

func (m *AppOpen) fresh(now time.Time) bool {
	return m.ad != nil && now.Sub(m.loadedAt) < AppOpenFreshness
}

// FirstShowDone reports whether the startup show has happened
func (m *AppOpen) FirstShowDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstShowDone
}

// Update performs the first-open show once the loading window has passed
// and a fresh ad is held
func (m *AppOpen) Update(now time.Time) {
	m.mu.Lock()
	due := !m.firstShowDone && m.fresh(now) && now.Sub(m.started) >= m.startDelay()
	if due {
		m.firstShowDone = true
	}
	m.mu.Unlock()

	if due {
		if err := m.Show(ReasonFirstOpen); err != nil {
			m.log.Debug().Err(err).Msg("First open show skipped")
		}
	}
}

// OnForeground shows an ad when the app returns to the foreground, once the
// first-open show has happened
func (m *AppOpen) OnForeground() error {
	if !m.FirstShowDone() {
		return nil
	}
	return m.Show(ReasonForeground)
}

// Show displays the ad. A stale or unshowable ad triggers a reload.
func (m *AppOpen) Show(reason string) error {
	if !m.deps.Gate.Allows(FormatAppOpen) {
		return ErrAdsDisabled
	}

	m.mu.Lock()
	if m.showing {
		m.mu.Unlock()
		return ErrShowInProgress
	}
	now := m.deps.Now()
	if !m.fresh(now) {
		m.mu.Unlock()
		m.log.Debug().Str("reason", reason).Msg("App open not fresh, reloading")
		m.Load(context.Background())
		return ErrAdStale
	}
	ad := m.ad
	if !ad.CanShow() {
		m.mu.Unlock()
		m.Load(context.Background())
		return ErrNotReady
	}
	m.showing = true
	m.mu.Unlock()

	m.log.Info().Str("reason", reason).Msg("Showing app open ad")
	if err := m.showAd(ad); err != nil {
		m.finish(err)
		return err
	}
	return nil
}

func (m *AppOpen) showAd(ad Ad) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("app open show panicked: %v", r)
		}
	}()
	return ad.Show()
}

// HandleEvent applies an SDK callback
func (m *AppOpen) HandleEvent(e Event) {
	e.Format = FormatAppOpen
	if e.UnitID == "" {
		e.UnitID = m.unitID
	}
	m.report.event(e)

	switch e.Kind {
	case EventOpened:
		m.mu.Lock()
		m.showing = true
		m.mu.Unlock()
	case EventClosed:
		m.finish(nil)
	case EventShowFailed:
		m.finish(fmt.Errorf("show failed: %s", e.Error))
	}
}

// finish releases the spent ad and loads the next one
func (m *AppOpen) finish(err error) {
	if err != nil {
		m.report.exception(err, "app_open.show")
	}

	m.mu.Lock()
	m.showing = false
	ad := m.ad
	m.ad = nil
	m.mu.Unlock()

	if ad != nil {
		ad.Destroy()
	}
	m.Load(context.Background())
}
