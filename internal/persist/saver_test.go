package persist

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSaverCoalescesWrites(t *testing.T) {
	s := NewSaver(testLog(), 30*time.Millisecond)
	defer s.Close()

	var writes atomic.Int32
	for i := 0; i < 10; i++ {
		s.Schedule(func() error {
			writes.Add(1)
			return nil
		})
	}

	time.Sleep(100 * time.Millisecond)
	if got := writes.Load(); got != 1 {
		t.Errorf("writes = %d, want 1", got)
	}
}

func TestSaverFlushRunsPendingImmediately(t *testing.T) {
	s := NewSaver(testLog(), time.Minute)
	defer s.Close()

	var writes atomic.Int32
	s.Schedule(func() error {
		writes.Add(1)
		return nil
	})

	s.Flush()
	if got := writes.Load(); got != 1 {
		t.Errorf("writes = %d, want 1", got)
	}

	// Flushing again must not re-run the write.
	s.Flush()
	if got := writes.Load(); got != 1 {
		t.Errorf("writes after second flush = %d, want 1", got)
	}
}

func TestSaverSwallowsWriteErrors(t *testing.T) {
	s := NewSaver(testLog(), time.Minute)
	defer s.Close()

	s.Schedule(func() error { return errors.New("quota exceeded") })
	s.Flush() // must not panic or propagate
}

func TestSaverClosedIgnoresSchedule(t *testing.T) {
	s := NewSaver(testLog(), 10*time.Millisecond)
	s.Close()

	var writes atomic.Int32
	s.Schedule(func() error {
		writes.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	if got := writes.Load(); got != 0 {
		t.Errorf("writes = %d, want 0 after Close", got)
	}
}
