package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrRecorderClosed is returned by Record after Close
var ErrRecorderClosed = errors.New("recorder closed")

// ErrRecorderFull is returned by Record when the write queue is full
var ErrRecorderFull = errors.New("recorder queue full")

const saveTimeout = 10 * time.Second

// Recorder writes finished matches in the background so the game loop
// never waits on the database
type Recorder struct {
	store ResultStore
	log   zerolog.Logger
	queue chan *MatchRecord
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewRecorder starts a recorder holding at most size pending matches
func NewRecorder(store ResultStore, size int, log zerolog.Logger) *Recorder {
	if size < 1 {
		size = 1
	}
	r := &Recorder{
		store: store,
		log:   log,
		queue: make(chan *MatchRecord, size),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues a match for saving. It never blocks.
func (r *Recorder) Record(m *MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.queue <- m:
		return nil
	default:
		r.log.Warn().Str("match", m.ID).Msg("Result queue full, dropping match")
		return ErrRecorderFull
	}
}

// Close flushes pending matches and closes the store
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return r.store.Close()
}

func (r *Recorder) run() {
	defer close(r.done)
	for m := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := r.store.SaveMatch(ctx, m)
		cancel()
		if err != nil {
			r.log.Error().Err(err).Str("match", m.ID).Msg("Failed to save match")
			continue
		}
		r.log.Debug().Str("match", m.ID).Int("participants", len(m.Results)).Msg("Match saved")
	}
}
