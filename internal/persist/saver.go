package persist

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long the saver waits after the last mutation
// before writing. Rapid bursts of edits collapse into one write.
const DefaultDebounce = 500 * time.Millisecond

// Saver coalesces persistence writes. Schedule replaces any pending
// write and restarts the timer; when it fires, the latest snapshot
// function runs once. Writes are fire-and-forget: failures are logged
// and swallowed, because the in-memory store stays authoritative.
type Saver struct {
	log   *logrus.Logger
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func() error
	closed  bool
}

// NewSaver creates a debounced saver. A non-positive delay falls back
// to DefaultDebounce.
func NewSaver(log *logrus.Logger, delay time.Duration) *Saver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Saver{log: log, delay: delay}
}

// Schedule queues write to run after the debounce window. A later
// Schedule before the window elapses supersedes this one.
func (s *Saver) Schedule(write func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = write
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

func (s *Saver) fire() {
	s.mu.Lock()
	write := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.run(write)
}

// Flush runs any pending write immediately.
func (s *Saver) Flush() {
	s.mu.Lock()
	write := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.run(write)
}

// Close flushes and stops the saver; later Schedules are ignored.
func (s *Saver) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Flush()
}

func (s *Saver) run(write func() error) {
	if write == nil {
		return
	}
	if err := write(); err != nil {
		// Quota exceeded, disabled storage, etc. Data stays safe in
		// memory; it just may not survive a restart.
		s.log.WithError(err).Warn("overlay persistence write failed")
	}
}
