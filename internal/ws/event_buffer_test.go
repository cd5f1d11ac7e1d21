package ws

import (
	"testing"
	"time"
)

func TestEventBufferSince(t *testing.T) {
	eb := NewEventBuffer(10, time.Hour)
	for i := uint64(1); i <= 5; i++ {
		eb.Append(&Event{ID: i, Time: time.Now()})
	}

	got := eb.Since(3)
	if len(got) != 2 || got[0].ID != 4 || got[1].ID != 5 {
		t.Fatalf("Since(3) = %+v", got)
	}
	if eb.Since(5) != nil {
		t.Error("Since(latest) should be nil")
	}
	if eb.OldestID() != 1 {
		t.Errorf("OldestID = %d", eb.OldestID())
	}
}

func TestEventBufferEnforcesMaxLen(t *testing.T) {
	eb := NewEventBuffer(3, time.Hour)
	for i := uint64(1); i <= 6; i++ {
		eb.Append(&Event{ID: i, Time: time.Now()})
	}
	if eb.OldestID() != 4 {
		t.Errorf("OldestID = %d, want 4", eb.OldestID())
	}
}

func TestEventBufferEvictsExpired(t *testing.T) {
	eb := NewEventBuffer(10, time.Millisecond)
	eb.Append(&Event{ID: 1, Time: time.Now().Add(-time.Second)})
	eb.Append(&Event{ID: 2, Time: time.Now()})
	if eb.OldestID() != 2 {
		t.Errorf("OldestID = %d, want 2", eb.OldestID())
	}
}
