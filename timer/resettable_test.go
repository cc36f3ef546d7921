package timer

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fireRecorder records when the callback ran
type fireRecorder struct {
	fired chan time.Time
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{fired: make(chan time.Time, 16)}
}

func (r *fireRecorder) fn() { r.fired <- time.Now() }

func (r *fireRecorder) wait(t *testing.T, within time.Duration) time.Time {
	t.Helper()
	select {
	case at := <-r.fired:
		return at
	case <-time.After(within):
		t.Fatalf("timer did not fire within %v", within)
		return time.Time{}
	}
}

func (r *fireRecorder) assertNotFired(t *testing.T, during time.Duration) {
	t.Helper()
	select {
	case <-r.fired:
		t.Fatal("timer fired unexpectedly")
	case <-time.After(during):
	}
}

func TestFiresAtMaxDelayWithoutReady(t *testing.T) {
	rec := newFireRecorder()
	tm := New(rec.fn)
	defer tm.Shutdown()

	start := time.Now()
	tm.Schedule(0, 120*time.Millisecond)
	at := rec.wait(t, time.Second)

	assert.GreaterOrEqual(t, at.Sub(start), 120*time.Millisecond)
}

func TestReadyFiresAtMinDelay(t *testing.T) {
	rec := newFireRecorder()
	tm := New(rec.fn)
	defer tm.Shutdown()

	start := time.Now()
	tm.Schedule(140*time.Millisecond, 400*time.Millisecond)
	tm.NotifyReady()
	at := rec.wait(t, time.Second)

	elapsed := at.Sub(start)
	assert.GreaterOrEqual(t, elapsed, 140*time.Millisecond)
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestReadyAfterMinDelayFiresImmediately(t *testing.T) {
	rec := newFireRecorder()
	tm := New(rec.fn)
	defer tm.Shutdown()

	tm.Schedule(20*time.Millisecond, time.Second)
	time.Sleep(60 * time.Millisecond)

	readyAt := time.Now()
	tm.NotifyReady()
	at := rec.wait(t, time.Second)
	assert.Less(t, at.Sub(readyAt), 50*time.Millisecond)
}

func TestPauseDelaysFire(t *testing.T) {
	rec := newFireRecorder()
	tm := New(rec.fn)
	defer tm.Shutdown()

	const pause = 150 * time.Millisecond
	start := time.Now()
	tm.Schedule(0, 100*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	tm.Pause()
	assert.True(t, tm.IsPaused())
	time.Sleep(pause)
	tm.Resume()

	at := rec.wait(t, time.Second)
	elapsed := at.Sub(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond+pause)
	assert.Less(t, elapsed, 100*time.Millisecond+pause+80*time.Millisecond)
}

func TestPausedTimerDoesNotFire(t *testing.T) {
	rec := newFireRecorder()
	tm := New(rec.fn)
	defer tm.Shutdown()

	tm.Pause()
	tm.Schedule(0, 0)
	rec.assertNotFired(t, 80*time.Millisecond)

	tm.Resume()
	rec.wait(t, time.Second)
}

func TestCancelDiscardsPendingFire(t *testing.T) {
	rec := newFireRecorder()
	tm := New(rec.fn)
	defer tm.Shutdown()

	tm.Schedule(0, 50*time.Millisecond)
	tm.Cancel()
	rec.assertNotFired(t, 120*time.Millisecond)
}

func TestScheduleReplacesPendingFire(t *testing.T) {
	rec := newFireRecorder()
	tm := New(rec.fn)
	defer tm.Shutdown()

	start := time.Now()
	tm.Schedule(0, 40*time.Millisecond)
	tm.Schedule(0, 150*time.Millisecond)

	at := rec.wait(t, time.Second)
	assert.GreaterOrEqual(t, at.Sub(start), 150*time.Millisecond)
	rec.assertNotFired(t, 80*time.Millisecond)
}

func TestRescheduleFromCallbackDoesNotRecurse(t *testing.T) {
	var (
		depth   atomic.Int32
		maxSeen atomic.Int32
		count   atomic.Int32
	)
	done := make(chan struct{})

	var tm *ResettableTimer
	tm = New(func() {
		d := depth.Add(1)
		defer depth.Add(-1)
		if d > maxSeen.Load() {
			maxSeen.Store(d)
		}
		if count.Add(1) == 20 {
			close(done)
			return
		}
		tm.Schedule(0, 0)
	})
	defer tm.Shutdown()

	tm.Schedule(0, 0)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback chain stalled")
	}
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestReschedulingDoesNotGrowGoroutines(t *testing.T) {
	rec := newFireRecorder()
	tm := New(rec.fn)
	defer tm.Shutdown()

	// let the worker start before taking the baseline
	tm.Schedule(0, 0)
	rec.wait(t, time.Second)
	before := runtime.NumGoroutine()

	for i := 0; i < 100; i++ {
		tm.Schedule(0, time.Millisecond)
		tm.NotifyReady()
		rec.wait(t, time.Second)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}

func TestCallbackPanicKeepsWorkerAlive(t *testing.T) {
	var calls atomic.Int32
	fired := make(chan struct{}, 2)
	tm := New(func() {
		fired <- struct{}{}
		if calls.Add(1) == 1 {
			panic("boom")
		}
	})
	defer tm.Shutdown()

	for i := 0; i < 2; i++ {
		tm.Schedule(0, 0)
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("fire %d missing", i)
		}
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestShutdownIsIdempotent(t *testing.T) {
	rec := newFireRecorder()
	tm := New(rec.fn)
	tm.Schedule(0, 30*time.Millisecond)
	tm.Shutdown()
	tm.Shutdown()
	rec.assertNotFired(t, 60*time.Millisecond)

	// calls after shutdown are harmless
	tm.Schedule(0, 0)
	tm.NotifyReady()
	tm.Cancel()
}

func TestShutdownFromCallback(t *testing.T) {
	done := make(chan struct{})
	var tm *ResettableTimer
	tm = New(func() {
		tm.Shutdown()
		close(done)
	})
	tm.Schedule(0, 0)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown from callback deadlocked")
	}
}
