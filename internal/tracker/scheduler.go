package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog/log"
)

// Scheduler coalesces persistence requests. Each Schedule call restarts the
// window; the flush function runs once the window elapses with no further
// calls. Mutations made inside an unflushed window are lost if the process
// dies before the timer fires or FlushNow is called.
type Scheduler struct {
	clock  quartz.Clock
	window time.Duration
	flush  func(ctx context.Context) error

	// flushMu serializes flushes and is always taken before mu.
	flushMu sync.Mutex

	mu      sync.Mutex
	timer   *quartz.Timer
	gen     uint64
	pending bool
	stopped bool
}

func NewScheduler(clock quartz.Clock, window time.Duration, flush func(ctx context.Context) error) *Scheduler {
	return &Scheduler{clock: clock, window: window, flush: flush}
}

// Schedule requests a write, restarting the debounce window.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = true
	if s.stopped {
		return
	}
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.window, func() { s.fire(gen) }, "scheduler", "debounce")
}

// Pending reports whether a write has been requested but not yet performed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// FlushNow performs a pending write immediately and cancels the timer. It
// waits for an in-flight timer flush to finish and is a no-op when nothing
// is pending.
func (s *Scheduler) FlushNow(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return nil
	}
	s.pending = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	return s.flush(ctx)
}

// Stop cancels the timer without writing. Later Schedule calls only mark the
// scheduler pending so a final FlushNow still persists them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if gen != s.gen || !s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.timer = nil
	s.mu.Unlock()

	if err := s.flush(context.Background()); err != nil {
		log.Error().Err(err).Msg("debounced flush failed")
	}
}
