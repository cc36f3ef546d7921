// Package timer provides ResettableTimer, the turn clock of the game server.
//
// A schedule carries two delays. maxDelay is a hard deadline: the callback
// fires when it passes even if nobody called NotifyReady. minDelay is the
// earliest legal fire time once NotifyReady has been called. A single worker
// goroutine serves every schedule for the lifetime of the timer and is the
// only goroutine that ever runs the callback.
package timer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ResettableTimer fires a callback after a deadline that can be shortened by
// NotifyReady, paused, resumed, replaced and cancelled.
type ResettableTimer struct {
	fn  func()
	log zerolog.Logger

	mu          sync.Mutex
	armed       bool
	start       time.Time
	minDelay    time.Duration
	maxDelay    time.Duration
	ready       bool
	paused      bool
	pausedAt    time.Time
	pausedTotal time.Duration
	closed      bool
	inCallback  bool

	wake chan struct{}
	done chan struct{}
}

// Option configures a ResettableTimer
type Option func(*ResettableTimer)

// WithLogger sets the logger used to report callback panics
func WithLogger(l zerolog.Logger) Option {
	return func(t *ResettableTimer) { t.log = l }
}

// New starts the worker goroutine. The timer is idle until Schedule.
func New(fn func(), opts ...Option) *ResettableTimer {
	t := &ResettableTimer{
		fn:   fn,
		log:  zerolog.Nop(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.run()
	return t
}

// Schedule arms the timer, replacing any pending fire
func (t *ResettableTimer) Schedule(minDelay, maxDelay time.Duration) {
	now := time.Now()
	t.mu.Lock()
	t.armed = true
	t.start = now
	t.minDelay = max(minDelay, 0)
	t.maxDelay = max(maxDelay, 0)
	t.ready = false
	t.pausedTotal = 0
	if t.paused {
		t.pausedAt = now
	}
	t.mu.Unlock()
	t.poke()
}

// NotifyReady lets the pending fire happen as soon as minDelay has elapsed
func (t *ResettableTimer) NotifyReady() {
	t.mu.Lock()
	if t.armed {
		t.ready = true
	}
	t.mu.Unlock()
	t.poke()
}

// Pause freezes the remaining time of the pending fire
func (t *ResettableTimer) Pause() {
	t.mu.Lock()
	if !t.paused {
		t.paused = true
		t.pausedAt = time.Now()
	}
	t.mu.Unlock()
	t.poke()
}

// Resume continues with the time that was left when paused
func (t *ResettableTimer) Resume() {
	t.mu.Lock()
	if t.paused {
		t.paused = false
		t.pausedTotal += time.Since(t.pausedAt)
	}
	t.mu.Unlock()
	t.poke()
}

// IsPaused reports whether the timer is paused
func (t *ResettableTimer) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Cancel discards the pending fire without running it
func (t *ResettableTimer) Cancel() {
	t.mu.Lock()
	t.armed = false
	t.ready = false
	t.mu.Unlock()
	t.poke()
}

// Shutdown stops the worker. It waits for a running callback unless called
// from inside that callback. Safe to call more than once.
func (t *ResettableTimer) Shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.armed = false
	fromCallback := t.inCallback
	t.mu.Unlock()
	t.poke()

	if !fromCallback {
		<-t.done
	}
}

func (t *ResettableTimer) poke() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// remaining returns how long until the pending fire; ok is false when
// nothing can fire (idle or paused). Must hold mu.
func (t *ResettableTimer) remaining(now time.Time) (time.Duration, bool) {
	if !t.armed || t.paused {
		return 0, false
	}
	delay := t.maxDelay
	if t.ready && t.minDelay < t.maxDelay {
		delay = t.minDelay
	}
	return t.start.Add(t.pausedTotal + delay).Sub(now), true
}

func (t *ResettableTimer) run() {
	defer close(t.done)

	clock := time.NewTimer(time.Hour)
	clock.Stop()

	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		wait, ok := t.remaining(time.Now())
		if ok && wait <= 0 {
			t.armed = false
			t.inCallback = true
			t.mu.Unlock()

			t.fire()

			t.mu.Lock()
			t.inCallback = false
			t.mu.Unlock()
			continue
		}
		t.mu.Unlock()

		if !ok {
			<-t.wake
			continue
		}
		clock.Reset(wait)
		select {
		case <-clock.C:
		case <-t.wake:
			clock.Stop()
		}
	}
}

func (t *ResettableTimer) fire() {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Msg("Timer callback panicked")
		}
	}()
	t.fn()
}
