// ABOUTME: Thread-safe minimum-interval limiter keyed by event id
// ABOUTME: Used to space operator-forced scoreboard refreshes 5 minutes apart

package throttle

import (
	"sync"
	"time"
)

// Limiter allows at most one acquisition per key per interval. Requests
// inside the cool-down are dropped: only the freshest refresh matters, so
// there is no queueing.
type Limiter struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	done     chan struct{}
	closed   bool

	// now is swappable for tests
	now func() time.Time
}

// New creates a limiter with the given minimum spacing between acquisitions
// of the same key. A background goroutine prunes stale entries.
func New(interval time.Duration) *Limiter {
	l := &Limiter{
		last:     make(map[string]time.Time),
		interval: interval,
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go l.cleanup()
	return l
}

// Allow reports whether the key is outside its cool-down window and, if so,
// starts a new window. The check and the mark are one atomic step.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if t, ok := l.last[key]; ok && now.Sub(t) < l.interval {
		return false
	}
	l.last[key] = now
	return true
}

// cleanup periodically removes entries whose window has long passed.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.runCleanup()
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) runCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, t := range l.last {
		if now.Sub(t) > l.interval {
			delete(l.last, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
