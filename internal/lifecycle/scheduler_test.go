// ABOUTME: Tests for the id-keyed transition timer table
// ABOUTME: Covers firing, replacement, cancellation, and self-clearing

package lifecycle

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_FiresAndClearsItself(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	fired := make(chan struct{})
	s.Schedule("evt-1", time.Now().Add(10*time.Millisecond), func() { close(fired) })
	assert.True(t, s.Scheduled("evt-1"))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	// Entry is cleared before the callback runs
	assert.Eventually(t, func() bool { return !s.Scheduled("evt-1") },
		time.Second, 5*time.Millisecond)
}

func TestScheduler_PastTimeFiresImmediately(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	fired := make(chan struct{})
	s.Schedule("evt-1", time.Now().Add(-time.Hour), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("past timer did not fire")
	}
}

func TestScheduler_ScheduleReplaces(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	var first, second atomic.Int32
	s.Schedule("evt-1", time.Now().Add(20*time.Millisecond), func() { first.Add(1) })
	s.Schedule("evt-1", time.Now().Add(20*time.Millisecond), func() { second.Add(1) })

	assert.Eventually(t, func() bool { return second.Load() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	var fired atomic.Int32
	s.Schedule("evt-1", time.Now().Add(30*time.Millisecond), func() { fired.Add(1) })
	s.Cancel("evt-1")
	assert.False(t, s.Scheduled("evt-1"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestScheduler_CloseIgnoresLaterSchedules(t *testing.T) {
	s := NewScheduler(nil)

	var fired atomic.Int32
	s.Schedule("evt-1", time.Now().Add(30*time.Millisecond), func() { fired.Add(1) })
	s.Close()
	s.Schedule("evt-2", time.Now(), func() { fired.Add(1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, s.Scheduled("evt-2"))
}
