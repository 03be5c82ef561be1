package session

import (
	"testing"
	"time"

	"meetsched/internal/model"
)

func testStore(ttl time.Duration) (*Store, *time.Time) {
	s := NewStore(ttl)
	clock := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestPutGet(t *testing.T) {
	t.Parallel()

	s, _ := testStore(time.Minute)
	cal := model.ParticipantCalendar{ParticipantID: "alice", Timezone: "UTC"}

	id := s.Put(cal)
	if id == "" {
		t.Fatal("Put returned empty id")
	}

	got, ok := s.Get(id)
	if !ok {
		t.Fatal("Get returned not found for fresh entry")
	}
	if got.ParticipantID != "alice" {
		t.Errorf("ParticipantID = %q, want alice", got.ParticipantID)
	}

	if _, ok := s.Get("no-such-session"); ok {
		t.Error("Get found an id that was never stored")
	}
}

func TestGetExpired(t *testing.T) {
	t.Parallel()

	s, clock := testStore(time.Minute)
	id := s.Put(model.ParticipantCalendar{ParticipantID: "alice"})

	*clock = clock.Add(2 * time.Minute)

	if _, ok := s.Get(id); ok {
		t.Error("Get returned an expired entry")
	}
	// Expired but unswept entries still count until Sweep runs.
	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 before sweep", got)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	s, _ := testStore(time.Minute)
	id := s.Put(model.ParticipantCalendar{ParticipantID: "alice"})

	s.Delete(id)
	if _, ok := s.Get(id); ok {
		t.Error("Get found a deleted entry")
	}
	s.Delete(id) // deleting twice is a no-op
}

func TestSweep(t *testing.T) {
	t.Parallel()

	s, clock := testStore(time.Minute)
	old := s.Put(model.ParticipantCalendar{ParticipantID: "alice"})

	*clock = clock.Add(30 * time.Second)
	fresh := s.Put(model.ParticipantCalendar{ParticipantID: "bob"})

	*clock = clock.Add(45 * time.Second)

	if removed := s.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, ok := s.Get(old); ok {
		t.Error("swept entry still retrievable")
	}
	if _, ok := s.Get(fresh); !ok {
		t.Error("unexpired entry removed by sweep")
	}
	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d after sweep, want 1", got)
	}

	if removed := s.Sweep(); removed != 0 {
		t.Errorf("second Sweep() removed %d, want 0", removed)
	}
}

func TestDefaultTTL(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	if s.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", s.ttl, DefaultTTL)
	}
}
