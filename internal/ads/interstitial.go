package ads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/idle"
	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// InterstitialRetryDelay is the wait before reloading after a failed load
const InterstitialRetryDelay = 10 * time.Second

// Callbacks are invoked around one Show call. Any of them may be nil.
type Callbacks struct {
	OnShown func()
	OnClose func()
	OnFail  func(error)
}

func (c Callbacks) shown() {
	if c.OnShown != nil {
		c.OnShown()
	}
}

func (c Callbacks) close() {
	if c.OnClose != nil {
		c.OnClose()
	}
}

func (c Callbacks) fail(err error) {
	if c.OnFail != nil {
		c.OnFail(err)
	}
}

// Interstitial manages the fullscreen interstitial unit
type Interstitial struct {
	deps     Deps
	unitID   string
	cooldown func() time.Duration
	report   reporter
	log      zerolog.Logger
	spawn    func(func())

	mu        sync.Mutex
	ad        Ad
	loading   bool
	retryAt   time.Time
	showing   bool
	pending   Callbacks
	lastShown time.Time
}

// NewInterstitial creates the interstitial manager. cooldown returns the
// minimum time between two shows.
func NewInterstitial(unitID string, cooldown func() time.Duration, deps Deps) *Interstitial {
	deps = deps.withDefaults()
	log := logger.Ads(string(FormatInterstitial))
	if cooldown == nil {
		cooldown = func() time.Duration { return 0 }
	}
	return &Interstitial{
		deps:     deps,
		unitID:   unitID,
		cooldown: cooldown,
		report:   reporter{format: FormatInterstitial, sink: deps.Sink, observer: deps.Observer, log: log},
		log:      log,
		spawn:    func(fn func()) { go fn() },
	}
}

// Load requests a new ad unless one is loaded or a load is in flight
func (m *Interstitial) Load(ctx context.Context) {
	if !m.deps.Gate.Allows(FormatInterstitial) {
		m.log.Debug().Msg("Interstitial disabled, skipping load")
		return
	}

	m.mu.Lock()
	if m.loading || m.ad != nil {
		m.mu.Unlock()
		return
	}
	m.loading = true
	m.retryAt = time.Time{}
	m.mu.Unlock()

	m.spawn(func() {
		ad, err := m.deps.SDK.Load(ctx, FormatInterstitial, m.unitID)
		m.deps.Dispatcher.Post(func() { m.loaded(ad, err) })
	})
}

func (m *Interstitial) loaded(ad Ad, err error) {
	m.mu.Lock()
	m.loading = false
	if err != nil || ad == nil {
		if err == nil {
			err = ErrNotReady
		}
		m.retryAt = m.deps.Now().Add(InterstitialRetryDelay)
		m.mu.Unlock()

		m.log.Warn().Err(err).Dur("retry_in", InterstitialRetryDelay).Msg("Interstitial load failed")
		m.report.event(Event{Kind: EventLoadFailed, UnitID: m.unitID, Error: errorText(err)})
		m.deps.Observer.ObserveLoadRetry(string(FormatInterstitial))
		return
	}
	m.ad = ad
	m.mu.Unlock()

	m.log.Debug().Msg("Interstitial loaded")
	m.report.event(Event{Kind: EventLoaded, UnitID: m.unitID})
}

// Update runs the scheduled load retry once its time has come
func (m *Interstitial) Update(now time.Time) {
	m.mu.Lock()
	due := !m.retryAt.IsZero() && !now.Before(m.retryAt)
	if due {
		m.retryAt = time.Time{}
	}
	m.mu.Unlock()

	if due && m.deps.Gate.CanShowAds() {
		m.log.Debug().Msg("Retrying interstitial load")
		m.Load(context.Background())
	}
}

// IsReady reports whether a loaded ad can be shown now
func (m *Interstitial) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ad != nil && m.ad.CanShow()
}

// Showing reports whether an ad is on screen
func (m *Interstitial) Showing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.showing
}

// RetryPending reports whether a load retry is scheduled
func (m *Interstitial) RetryPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.retryAt.IsZero()
}

// CooldownLeft is the time until the next show is allowed
func (m *Interstitial) CooldownLeft() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldownLeft(m.deps.Now())
}

func (m *Interstitial) cooldownLeft(now time.Time) time.Duration {
	if m.lastShown.IsZero() {
		return 0
	}
	left := m.cooldown() - now.Sub(m.lastShown)
	if left < 0 {
		return 0
	}
	return left
}

// Show displays the loaded ad. When it cannot show, OnFail then OnClose run
// before Show returns. Otherwise the callbacks follow the SDK events.
func (m *Interstitial) Show(cb Callbacks) error {
	if !m.deps.Gate.Allows(FormatInterstitial) {
		cb.fail(ErrAdsDisabled)
		cb.close()
		return ErrAdsDisabled
	}

	m.mu.Lock()
	if m.showing {
		m.mu.Unlock()
		cb.fail(ErrShowInProgress)
		return ErrShowInProgress
	}
	if left := m.cooldownLeft(m.deps.Now()); left > 0 {
		m.mu.Unlock()
		err := fmt.Errorf("%w: %s left", ErrCooldown, left.Round(time.Second))
		cb.fail(err)
		cb.close()
		return err
	}
	ad := m.ad
	if ad == nil || !ad.CanShow() {
		m.mu.Unlock()
		m.log.Debug().Msg("Interstitial not ready, reloading")
		cb.fail(ErrNotReady)
		cb.close()
		m.Load(context.Background())
		return ErrNotReady
	}
	m.showing = true
	m.pending = cb
	m.mu.Unlock()

	if err := m.showAd(ad); err != nil {
		m.showFailed(err)
		return err
	}
	return nil
}

func (m *Interstitial) showAd(ad Ad) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interstitial show panicked: %v", r)
		}
	}()
	return ad.Show()
}

// HandleEvent applies an SDK callback
func (m *Interstitial) HandleEvent(e Event) {
	e.Format = FormatInterstitial
	if e.UnitID == "" {
		e.UnitID = m.unitID
	}
	m.report.event(e)

	switch e.Kind {
	case EventOpened:
		m.opened()
	case EventClosed:
		m.closed()
	case EventShowFailed:
		m.showFailed(fmt.Errorf("show failed: %s", e.Error))
	}
}

func (m *Interstitial) opened() {
	m.mu.Lock()
	m.showing = true
	m.lastShown = m.deps.Now()
	cb := m.pending
	m.mu.Unlock()

	cb.shown()
}

func (m *Interstitial) closed() {
	cb := m.consume()
	cb.close()
	m.Load(context.Background())
}

func (m *Interstitial) showFailed(err error) {
	m.report.exception(err, "interstitial.show")
	cb := m.consume()
	cb.fail(err)
	cb.close()
	m.Load(context.Background())
}

// consume ends the current show and releases the spent ad
func (m *Interstitial) consume() Callbacks {
	m.mu.Lock()
	cb := m.pending
	m.pending = Callbacks{}
	m.showing = false
	ad := m.ad
	m.ad = nil
	m.mu.Unlock()

	if ad != nil {
		ad.Destroy()
	}
	return cb
}

// IdleAction adapts Show to the idle trigger. A close after a successful
// show completes with success; a failure to show completes with failure.
func (m *Interstitial) IdleAction() idle.Action {
	return func(c idle.Completion) {
		if !m.deps.Gate.CanShowAds() {
			c.Success()
			return
		}
		err := m.Show(Callbacks{
			OnClose: c.Success,
			OnFail:  func(error) { c.Failure() },
		})
		if err != nil && !isBenign(err) {
			m.log.Warn().Err(err).Msg("Idle interstitial failed")
		}
	}
}
