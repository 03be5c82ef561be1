package recur

import (
	"strings"
	"testing"
	"time"

	"meetsched/internal/model"
)

func baseEvent(start time.Time, dur time.Duration) model.Event {
	return model.Event{
		ID:       "ev",
		Title:    "Standup",
		Start:    start,
		End:      start.Add(dur),
		Timezone: "UTC",
		Status:   model.StatusConfirmed,
	}
}

func TestExpandNonRecurring(t *testing.T) {
	t.Parallel()

	ev := baseEvent(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), time.Hour)

	t.Run("inside window", func(t *testing.T) {
		t.Parallel()

		window := Window{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		}
		got := Expand(ev, window, 0)
		if len(got) != 1 || got[0].ID != "ev" {
			t.Errorf("Expand() = %+v, want the event itself", got)
		}
	})

	t.Run("outside window", func(t *testing.T) {
		t.Parallel()

		window := Window{
			Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
		}
		if got := Expand(ev, window, 0); len(got) != 0 {
			t.Errorf("Expand() = %+v, want empty", got)
		}
	})
}

func TestExpandWeeklyCount(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, 12, 1, 12, 0, 0, 0, time.UTC)
	ev := baseEvent(start, time.Hour)
	ev.Recurrence = &model.RecurrenceRule{Frequency: model.FreqWeekly, Interval: 1, Count: 4}

	window := Window{
		Start: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
	}

	got := Expand(ev, window, 0)
	if len(got) != 4 {
		t.Fatalf("got %d occurrences, want 4", len(got))
	}

	seen := map[string]bool{}
	for i, occ := range got {
		wantStart := start.AddDate(0, 0, 7*i)
		if !occ.Start.Equal(wantStart) {
			t.Errorf("occurrence %d start = %v, want %v (7-day spacing)", i, occ.Start, wantStart)
		}
		if occ.Duration() != time.Hour {
			t.Errorf("occurrence %d duration = %v, want 1h", i, occ.Duration())
		}
		if !strings.HasPrefix(occ.ID, "ev-") {
			t.Errorf("occurrence %d id = %q, want parent-derived id", i, occ.ID)
		}
		if seen[occ.ID] {
			t.Errorf("duplicate occurrence id %q", occ.ID)
		}
		seen[occ.ID] = true
		if occ.Recurrence != nil {
			t.Errorf("occurrence %d still carries a recurrence rule", i)
		}
	}
}

func TestExpandExclusions(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ev := baseEvent(start, time.Hour)
	ev.Recurrence = &model.RecurrenceRule{Frequency: model.FreqWeekly, Interval: 1, Count: 4}
	excluded := start.AddDate(0, 0, 7)
	ev.Exclusions = []time.Time{excluded}

	window := Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
	}

	got := Expand(ev, window, 0)
	if len(got) != 3 {
		t.Fatalf("got %d occurrences, want 3 (one excluded)", len(got))
	}
	for _, occ := range got {
		if occ.Start.Equal(excluded) {
			t.Errorf("excluded occurrence %v was generated", occ.Start)
		}
		if occ.Exclusions != nil {
			t.Error("derived occurrence still carries exclusion dates")
		}
	}
}

func TestExpandExclusionsAcrossFrames(t *testing.T) {
	t.Parallel()

	// The exclusion instant arrives in a different frame than the series
	// anchor; matching is by instant, not wall clock.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	ev := baseEvent(start, time.Hour)
	ev.Recurrence = &model.RecurrenceRule{Frequency: model.FreqDaily, Interval: 1, Count: 3}
	// 2024-01-02 09:00 New York == 2024-01-02 14:00 UTC.
	ev.Exclusions = []time.Time{time.Date(2024, 1, 2, 9, 0, 0, 0, ny)}

	window := Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}

	got := Expand(ev, window, 0)
	if len(got) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(got))
	}
	for _, occ := range got {
		if occ.Start.Equal(time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC)) {
			t.Errorf("excluded occurrence %v was generated", occ.Start)
		}
	}
}

func TestExpandCap(t *testing.T) {
	t.Parallel()

	ev := baseEvent(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), 30*time.Minute)
	ev.Recurrence = &model.RecurrenceRule{Frequency: model.FreqDaily, Interval: 1}

	window := Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if got := Expand(ev, window, 50); len(got) != 50 {
		t.Errorf("got %d occurrences, want cap of 50", len(got))
	}
	if got := Expand(ev, window, 0); len(got) != DefaultMaxOccurrences {
		t.Errorf("got %d occurrences, want default cap %d", len(got), DefaultMaxOccurrences)
	}
}

func TestExpandWindowEndPad(t *testing.T) {
	t.Parallel()

	// Daily at 23:00; the window closes at 23:30 on Jan 2. The Jan 2
	// occurrence starts before the window closes and must be included even
	// though it ends past it.
	ev := baseEvent(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC), 2*time.Hour)
	ev.Recurrence = &model.RecurrenceRule{Frequency: model.FreqDaily, Interval: 1, Count: 2}

	window := Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 23, 30, 0, 0, time.UTC),
	}

	got := Expand(ev, window, 0)
	if len(got) != 2 {
		t.Fatalf("got %d occurrences, want 2 (end pad catches the spanning one)", len(got))
	}
}

func TestExpandFallbackOnBadRule(t *testing.T) {
	t.Parallel()

	ev := baseEvent(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), time.Hour)
	ev.Recurrence = &model.RecurrenceRule{Frequency: model.Frequency("BOGUS")}

	window := Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}

	got := Expand(ev, window, 0)
	if len(got) != 1 {
		t.Fatalf("got %d events, want the unexpanded parent", len(got))
	}
	if got[0].Recurrence != nil {
		t.Error("fallback parent should have its rule cleared")
	}

	outside := Window{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	if got := Expand(ev, outside, 0); len(got) != 0 {
		t.Errorf("got %+v, want nothing outside the window", got)
	}
}
