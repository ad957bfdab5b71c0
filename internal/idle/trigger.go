// Package idle fires an action after a period without user interaction and
// holds off re-firing until that action reports back.
package idle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// Completion is handed to the guarded action. Exactly one of Success or
// Failure takes effect; later calls are ignored.
type Completion interface {
	Success()
	Failure()
}

// Action runs when the idle threshold is reached
type Action func(Completion)

// Observer receives trigger events for metrics
type Observer interface {
	ObserveIdleFire()
	ObserveIdleCompletion(result string)
}

type nopObserver struct{}

func (nopObserver) ObserveIdleFire()             {}
func (nopObserver) ObserveIdleCompletion(string) {}

// Completion results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPanic   = "panic"
)

// Config holds the timing of the trigger
type Config struct {
	// Threshold is the idle time before the action fires
	Threshold time.Duration
	// MinInterval is the cooldown after a successful action
	MinInterval time.Duration
}

// DefaultConfig mirrors the remote config defaults (idle_time, idle_min_interval)
func DefaultConfig() Config {
	return Config{
		Threshold:   30 * time.Second,
		MinInterval: 120 * time.Second,
	}
}

// Trigger is the idle cooldown timer. Tick is expected from one logical
// thread; Completion may be called from anywhere.
type Trigger struct {
	mu           sync.Mutex
	cfg          Config
	action       Action
	enabled      func() bool
	elapsed      time.Duration
	cooldownLeft time.Duration
	busy         bool
	fires        uint64

	observer Observer
	log      zerolog.Logger
}

// Option configures a Trigger
type Option func(*Trigger)

// WithEnabled sets the feature predicate consulted on every tick
func WithEnabled(fn func() bool) Option {
	return func(t *Trigger) { t.enabled = fn }
}

// WithObserver reports fires and completions
func WithObserver(o Observer) Option {
	return func(t *Trigger) {
		if o != nil {
			t.observer = o
		}
	}
}

// New creates a trigger
func New(cfg Config, action Action, opts ...Option) *Trigger {
	t := &Trigger{
		cfg:      cfg,
		action:   action,
		observer: nopObserver{},
		log:      logger.Idle(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tick advances the timer by dt. While the feature is disabled nothing
// changes; elapsed time resumes from where it stopped once re-enabled.
func (t *Trigger) Tick(dt time.Duration, userInteracted bool) {
	if t.enabled != nil && !t.enabled() {
		return
	}

	t.mu.Lock()
	if t.cooldownLeft > 0 {
		t.cooldownLeft -= dt
		if t.cooldownLeft < 0 {
			t.cooldownLeft = 0
		}
	}

	if userInteracted {
		t.elapsed = 0
	} else {
		t.elapsed += dt
	}

	if t.busy || t.cooldownLeft > 0 || t.action == nil || t.elapsed < t.cfg.Threshold {
		t.mu.Unlock()
		return
	}

	t.busy = true
	t.fires++
	c := &completion{trigger: t}
	elapsed := t.elapsed
	t.mu.Unlock()

	t.observer.ObserveIdleFire()
	t.log.Info().Dur("idle", elapsed).Msg("Idle threshold reached, firing action")
	t.run(c)
}

func (t *Trigger) run(c *completion) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Msg("Idle action panicked")
			c.finish(ResultPanic)
		}
	}()
	t.action(c)
}

// SetThreshold changes the idle threshold
func (t *Trigger) SetThreshold(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.Threshold = d
}

// SetMinInterval changes the cooldown after a successful action
func (t *Trigger) SetMinInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.MinInterval = d
}

// Config returns the current timing
func (t *Trigger) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// Elapsed returns the accumulated idle time
func (t *Trigger) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Busy reports whether an action is in flight
func (t *Trigger) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// CooldownLeft returns the remaining min-interval cooldown
func (t *Trigger) CooldownLeft() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cooldownLeft
}

// Fires returns how many times the action has been invoked
func (t *Trigger) Fires() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fires
}

func (t *Trigger) complete(result string) {
	t.mu.Lock()
	t.elapsed = 0
	t.busy = false
	if result == ResultSuccess {
		t.cooldownLeft = t.cfg.MinInterval
	}
	t.mu.Unlock()

	t.observer.ObserveIdleCompletion(result)
	t.log.Debug().Str("result", result).Msg("Idle action completed, re-armed")
}

type completion struct {
	once    sync.Once
	trigger *Trigger
}

func (c *completion) Success() { c.finish(ResultSuccess) }
func (c *completion) Failure() { c.finish(ResultFailure) }

func (c *completion) finish(result string) {
	c.once.Do(func() { c.trigger.complete(result) })
}
