// Package host provides the single-threaded cooperative loop that drives
// per-frame ticks and runs async continuations on one logical thread.
package host

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// Dispatcher delivers a continuation onto the owner's logical thread
type Dispatcher interface {
	Post(fn func())
}

// Immediate runs posted functions on the caller's goroutine
type Immediate struct{}

// Post runs fn right away
func (Immediate) Post(fn func()) {
	fn()
}

// Frame describes one tick of the loop
type Frame struct {
	Now        time.Time
	Delta      time.Duration
	Interacted bool
}

// Handler is called once per frame
type Handler func(Frame)

// Loop owns one goroutine. Posted functions and tick handlers never run
// concurrently with each other.
type Loop struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	queue    []func()
	handlers []Handler
	wake     chan struct{}

	interacted atomic.Bool
	running    atomic.Bool
}

// NewLoop creates a loop ticking at the given interval
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Loop{
		interval: interval,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
}

// OnTick registers a per-frame handler. Handlers run in registration order.
func (l *Loop) OnTick(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Post queues fn to run on the loop goroutine. Safe from any goroutine,
// including the loop itself.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop goroutine and waits for it to finish
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interact latches a user interaction; the next frame reports it
func (l *Loop) Interact() {
	l.interacted.Store(true)
}

// Running reports whether Run is active
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Run drives the loop until ctx is cancelled
func (l *Loop) Run(ctx context.Context) {
	log := logger.Log.With().Str("component", "host").Logger()

	l.running.Store(true)
	defer l.running.Store(false)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	last := l.now()
	log.Info().Dur("interval", l.interval).Msg("Host loop started")

	for {
		select {
		case <-ctx.Done():
			l.drain()
			log.Info().Msg("Host loop stopped")
			return
		case <-l.wake:
			l.drain()
		case <-ticker.C:
			l.drain()
			now := l.now()
			l.tick(Frame{
				Now:        now,
				Delta:      now.Sub(last),
				Interacted: l.interacted.Swap(false),
			})
			last = now
		}
	}
}

// Step runs queued work and a single frame synchronously. Used by tests
// and by embedders that own their own frame clock.
func (l *Loop) Step(dt time.Duration, interacted bool) {
	l.drain()
	l.tick(Frame{
		Now:        l.now(),
		Delta:      dt,
		Interacted: interacted || l.interacted.Swap(false),
	})
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.safeRun(fn)
		}
	}
}

func (l *Loop) tick(f Frame) {
	l.mu.Lock()
	handlers := make([]Handler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.Unlock()

	for _, h := range handlers {
		h := h
		l.safeRun(func() { h(f) })
	}
}

func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error().
				Str("component", "host").
				Interface("panic", r).
				Msg("Recovered panic on host loop")
		}
	}()
	fn()
}
