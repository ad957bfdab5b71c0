package remoteconfig

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/host"
	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// State is the readiness of the store
type State int32

const (
	// StatePending means no fetch has completed yet
	StatePending State = iota
	// StateReady means a fetch completed, successfully or not
	StateReady
)

// String returns the state name
func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "pending"
}

// Source tells where the current value came from
type Source string

const (
	SourceDefault Source = "default"
	SourceRemote  Source = "remote"
)

// Value is the current state of one key
type Value struct {
	Key     Key    `json:"key" yaml:"key"`
	Kind    string `json:"kind" yaml:"-"`
	Current int64  `json:"value" yaml:"value"`
	Default int64  `json:"default" yaml:"-"`
	Source  Source `json:"source" yaml:"-"`
}

// Bool returns the value as a flag
func (v Value) Bool() bool {
	return v.Current != 0
}

// Fetcher is the remote key-value source. Numbers and flags both arrive as
// float64; keys outside the catalogue are ignored.
type Fetcher interface {
	Fetch(ctx context.Context) (map[string]float64, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context) (map[string]float64, error)

// Fetch calls f
func (f FetcherFunc) Fetch(ctx context.Context) (map[string]float64, error) {
	return f(ctx)
}

// Observer receives store events for metrics
type Observer interface {
	ObserveFetch(outcome string, duration time.Duration)
	ObserveReady(sinceStart time.Duration)
	ObserveCorrection(key string)
	ObserveDeferred(ok bool)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(string, time.Duration) {}
func (nopObserver) ObserveReady(time.Duration)         {}
func (nopObserver) ObserveCorrection(string)           {}
func (nopObserver) ObserveDeferred(bool)               {}

type listener struct {
	id uint64
	fn func()
}

// Store is the readiness-gated configuration store. One Store is created
// at the application root and passed to every consumer.
type Store struct {
	mu        sync.Mutex
	catalogue *Catalogue
	values    map[Key]*Value
	state     State
	fetching  bool
	fetched   bool
	pending   []func()
	listeners []listener
	nextID    uint64
	ready     chan struct{}
	created   time.Time

	fetcher    Fetcher
	dispatcher host.Dispatcher
	snapshot   *SnapshotFile
	observer   Observer
	log        zerolog.Logger
	spawn      func(func())
}

// Option configures a Store
type Option func(*Store)

// WithDispatcher delivers fetch completion through d, so the Pending→Ready
// transition runs on the host's logical thread
func WithDispatcher(d host.Dispatcher) Option {
	return func(s *Store) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithSnapshot persists successful fetches and seeds values from the last one
func WithSnapshot(f *SnapshotFile) Option {
	return func(s *Store) { s.snapshot = f }
}

// WithObserver reports fetch and readiness events
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger overrides the component logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore creates a store seeded from the catalogue defaults
func NewStore(catalogue *Catalogue, fetcher Fetcher, opts ...Option) *Store {
	if catalogue == nil {
		catalogue = DefaultCatalogue()
	}

	s := &Store{
		catalogue:  catalogue,
		values:     make(map[Key]*Value, catalogue.Len()),
		ready:      make(chan struct{}),
		created:    time.Now(),
		fetcher:    fetcher,
		dispatcher: host.Immediate{},
		observer:   nopObserver{},
		log:        logger.RemoteConfig(),
		spawn:      func(fn func()) { go fn() },
	}

	for _, key := range catalogue.Keys() {
		def, _ := catalogue.Lookup(key)
		s.values[key] = &Value{
			Key:     key,
			Kind:    def.Kind.String(),
			Current: def.Default,
			Default: def.Default,
			Source:  SourceDefault,
		}
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.snapshot != nil {
		s.restoreSnapshot()
	}

	return s
}

// Get returns the current value of key. Unknown keys return a zero Value
// with default source.
func (s *Store) Get(key Key) Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		s.log.Debug().Str("key", string(key)).Msg("Unknown config key requested")
		return Value{Key: key, Kind: KindInt.String(), Source: SourceDefault}
	}
	return *v
}

// Int returns the value of key as an int
func (s *Store) Int(key Key) int {
	return int(s.Get(key).Current)
}

// Bool returns the value of key as a flag
func (s *Store) Bool(key Key) bool {
	return s.Get(key).Bool()
}

// Seconds returns the value of key as a duration in seconds
func (s *Store) Seconds(key Key) time.Duration {
	v := s.Get(key).Current
	const maxSeconds = int64(math.MaxInt64 / time.Second)
	switch {
	case v > maxSeconds:
		return time.Duration(math.MaxInt64)
	case v < -maxSeconds:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(v) * time.Second
}

// Snapshot returns every value sorted by key
func (s *Store) Snapshot() []Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Value, 0, len(s.values))
	for _, key := range s.catalogue.Keys() {
		out = append(out, *s.values[key])
	}
	return out
}

// State returns the readiness state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsReady reports whether the store has left Pending
func (s *Store) IsReady() bool {
	return s.State() == StateReady
}

// Ready returns a channel closed on the Pending→Ready transition
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// RunAfterReady runs action now if the store is ready, otherwise queues it
// until the transition. Queued actions run once, in submission order.
func (s *Store) RunAfterReady(action func()) {
	if action == nil {
		return
	}

	s.mu.Lock()
	if s.state != StateReady {
		s.pending = append(s.pending, action)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.runIsolated("action", action)
}

// OnReady registers a one-shot readiness listener. The returned function
// unregisters it; calling it after the listener fired is a no-op. A
// listener registered after the transition fires immediately.
func (s *Store) OnReady(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		s.runIsolated("listener", fn)
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// BeginFetch starts the remote fetch. A fetch already running or already
// finished makes this a no-op. Whatever the outcome, the store becomes
// ready once the fetch finishes.
func (s *Store) BeginFetch(ctx context.Context) {
	s.mu.Lock()
	if s.fetched {
		s.mu.Unlock()
		s.log.Info().Msg("Remote config already loaded")
		return
	}
	if s.fetching {
		s.mu.Unlock()
		s.log.Info().Msg("Remote config already loading")
		return
	}
	s.fetching = true
	fetcher := s.fetcher
	s.mu.Unlock()

	if fetcher == nil {
		s.log.Error().Msg("No remote config source configured, using defaults")
		s.dispatcher.Post(func() {
			s.completeFetch(nil, fmt.Errorf("%w: no source configured", ErrFetchUnavailable), 0)
		})
		return
	}

	s.log.Info().Msg("Fetching remote config")
	s.spawn(func() {
		start := time.Now()
		payload, err := fetcher.Fetch(ctx)
		elapsed := time.Since(start)
		s.dispatcher.Post(func() {
			s.completeFetch(payload, err, elapsed)
		})
	})
}

// WaitUntilReady blocks until the store is ready or timeout elapses. On
// timeout it returns ErrFetchTimedOut and the caller should continue with
// the current values. Do not call it from the dispatcher's own thread.
func (s *Store) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		return nil
	case <-timer.C:
		s.log.Warn().Dur("timeout", timeout).Msg("Remote config wait timed out, using current values")
		return fmt.Errorf("%w after %s", ErrFetchTimedOut, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrFetchTimedOut, ctx.Err())
	}
}

func (s *Store) completeFetch(payload map[string]float64, err error, elapsed time.Duration) {
	outcome := classify(err)
	s.observer.ObserveFetch(outcome, elapsed)

	s.mu.Lock()
	s.fetching = false
	s.fetched = true
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("outcome", outcome).Msg("Remote config fetch failed, using defaults")
		s.markReady()
		return
	}

	applied := s.apply(payload)
	s.log.Info().
		Int("applied", applied).
		Int("ads_display", s.Int(KeyAdsDisplay)).
		Int("openads_enable", s.Int(KeyOpenAdsEnable)).
		Int("countDown", s.Int(KeyCountDown)).
		Int("time_load_startapp", s.Int(KeyTimeLoadStartApp)).
		Msg("Remote config loaded")

	if s.snapshot != nil && applied > 0 {
		if err := s.snapshot.Save(s.remoteValues()); err != nil {
			s.log.Warn().Err(err).Str("path", s.snapshot.Path()).Msg("Failed to save remote config snapshot")
		}
	}

	s.markReady()
}

// saturate converts a finite float to int64, pinning out-of-range values to
// the nearest bound
func saturate(raw float64) int64 {
	switch {
	case raw >= math.MaxInt64:
		return math.MaxInt64
	case raw <= math.MinInt64:
		return math.MinInt64
	}
	return int64(raw)
}

// apply writes the payload into the store and returns how many keys changed source
func (s *Store) apply(payload map[string]float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := make(map[Key]int64, len(payload))
	for name, raw := range payload {
		key := Key(name)
		if _, ok := s.catalogue.Lookup(key); !ok {
			s.log.Debug().Str("key", name).Msg("Ignoring unknown remote key")
			continue
		}
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			s.log.Warn().Str("key", name).Msg("Ignoring non-finite remote value")
			continue
		}
		incoming[key] = saturate(raw)
	}

	lookup := func(k Key) (int64, bool) {
		if v, ok := incoming[k]; ok {
			return v, true
		}
		if v, ok := s.values[k]; ok {
			return v.Current, true
		}
		return 0, false
	}

	applied := 0
	for _, key := range s.catalogue.Keys() {
		def, _ := s.catalogue.Lookup(key)

		raw, ok := incoming[key]
		if def.AliasOf != "" {
			if alias, aliased := incoming[def.AliasOf]; aliased && alias > 0 {
				raw, ok = alias, true
			}
		}
		if !ok {
			continue
		}

		value := raw
		if def.Correct != nil {
			corrected, changed := def.Correct(raw, lookup)
			if changed {
				s.log.Warn().
					Str("key", string(key)).
					Int64("fetched", raw).
					Int64("corrected", corrected).
					Msg("Remote config value out of range, corrected")
				s.observer.ObserveCorrection(string(key))
			}
			value = corrected
		}

		v := s.values[key]
		v.Current = value
		v.Source = SourceRemote
		applied++
	}
	return applied
}

func (s *Store) remoteValues() []Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Value
	for _, key := range s.catalogue.Keys() {
		if v := s.values[key]; v.Source == SourceRemote {
			out = append(out, *v)
		}
	}
	return out
}

func (s *Store) restoreSnapshot() {
	values, err := s.snapshot.Load()
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.snapshot.Path()).Msg("Failed to read remote config snapshot")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	restored := 0
	for key, current := range values {
		if v, ok := s.values[key]; ok {
			v.Current = current
			v.Source = SourceRemote
			restored++
		}
	}
	if restored > 0 {
		s.log.Info().Int("restored", restored).Msg("Seeded config from last remote snapshot")
	}
}

// markReady flips Pending→Ready once, notifies listeners, then drains the
// deferred queue in order
func (s *Store) markReady() {
	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		return
	}
	s.state = StateReady
	listeners := s.listeners
	actions := s.pending
	s.listeners = nil
	s.pending = nil
	close(s.ready)
	s.mu.Unlock()

	s.observer.ObserveReady(time.Since(s.created))
	s.log.Info().Int("deferred_actions", len(actions)).Msg("Remote config is ready")

	for _, l := range listeners {
		s.runIsolated("listener", l.fn)
	}
	for _, action := range actions {
		s.runIsolated("action", action)
	}
}

// runIsolated runs fn and recovers a panic so the next callback still runs
func (s *Store) runIsolated(kind string, fn func()) {
	ok := false
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("kind", kind).
				Interface("panic", r).
				Msg("Deferred config callback failed")
		}
		if kind == "action" {
			s.observer.ObserveDeferred(ok)
		}
	}()
	fn()
	ok = true
}
