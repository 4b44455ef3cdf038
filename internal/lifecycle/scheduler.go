// ABOUTME: Id-keyed timer table for event start/end transitions
// ABOUTME: A firing timer clears its own entry before running its callback

package lifecycle

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler owns a mapping from event id to one cancellable timer. Scheduling
// an id that already has a timer replaces it.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	logger *slog.Logger
}

// NewScheduler creates an empty scheduler. Pass nil logger for default.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		logger: logger.With("component", "scheduler"),
	}
}

// Schedule arms a timer for the id, replacing any existing one. A time in the
// past fires immediately. The entry is cleared before fn runs, so a firing
// timer never blocks rescheduling of its own id.
func (s *Scheduler) Schedule(id string, at time.Time, fn func()) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.clear(id)
		fn()
	})
	s.logger.Debug("timer scheduled", "id", id, "at", at)
}

// Cancel stops and removes the id's timer, if any.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// Scheduled reports whether the id currently has an armed timer. Sweeps use
// this to avoid double-scheduling ids that already carry one.
func (s *Scheduler) Scheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

func (s *Scheduler) clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, id)
}

// Close stops every armed timer. Further Schedule calls are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
