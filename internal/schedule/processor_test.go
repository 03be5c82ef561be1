package schedule

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"meetsched/internal/model"
	"meetsched/internal/recur"
)

var testWindow = recur.Window{
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
}

func utcEvent(id string, start, end time.Time) model.Event {
	return model.Event{
		ID:       id,
		Title:    id,
		Start:    start,
		End:      end,
		Timezone: "UTC",
		Status:   model.StatusConfirmed,
	}
}

func at(day, hour, min int) time.Time {
	return time.Date(2024, 1, day, hour, min, 0, 0, time.UTC)
}

func TestProcessCalendarOverlap(t *testing.T) {
	t.Parallel()

	cal := model.ParticipantCalendar{
		ParticipantID: "alice",
		Events: []model.Event{
			utcEvent("e1", at(15, 10, 0), at(15, 11, 0)),
			utcEvent("e2", at(15, 10, 30), at(15, 11, 30)),
		},
	}

	res, err := NewProcessor().ProcessCalendar(cal, testWindow)
	if err != nil {
		t.Fatalf("ProcessCalendar() error = %v", err)
	}

	if len(res.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.OverlapMinutes != 30 {
		t.Errorf("OverlapMinutes = %d, want 30", c.OverlapMinutes)
	}
	if !c.OverlapStart.Equal(at(15, 10, 30)) || !c.OverlapEnd.Equal(at(15, 11, 0)) {
		t.Errorf("overlap window = [%v, %v), want [10:30, 11:00)", c.OverlapStart, c.OverlapEnd)
	}
	// Conflict symmetry: the strict overlap test holds for the reported pair.
	if !c.Event1.Start.Before(c.Event2.End) || !c.Event2.Start.Before(c.Event1.End) {
		t.Error("reported conflict does not satisfy the strict overlap test")
	}

	wantBusy := []model.BusyPeriod{{
		Start:    at(15, 10, 0),
		End:      at(15, 11, 30),
		EventIDs: []string{"e1", "e2"},
	}}
	if diff := cmp.Diff(wantBusy, res.BusyPeriods); diff != "" {
		t.Errorf("busy periods mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessCalendarTouchingEvents(t *testing.T) {
	t.Parallel()

	cal := model.ParticipantCalendar{
		ParticipantID: "alice",
		Events: []model.Event{
			utcEvent("e1", at(15, 10, 0), at(15, 11, 0)),
			utcEvent("e2", at(15, 11, 0), at(15, 12, 0)),
		},
	}

	res, err := NewProcessor().ProcessCalendar(cal, testWindow)
	if err != nil {
		t.Fatalf("ProcessCalendar() error = %v", err)
	}

	if len(res.Conflicts) != 0 {
		t.Errorf("touching events reported as conflict: %+v", res.Conflicts)
	}
	if len(res.BusyPeriods) != 1 {
		t.Fatalf("got %d busy periods, want 1 (touching intervals merge)", len(res.BusyPeriods))
	}
	bp := res.BusyPeriods[0]
	if !bp.Start.Equal(at(15, 10, 0)) || !bp.End.Equal(at(15, 12, 0)) {
		t.Errorf("merged period = [%v, %v), want [10:00, 12:00)", bp.Start, bp.End)
	}
}

func TestProcessCalendarCleaning(t *testing.T) {
	t.Parallel()

	longEnd := at(2, 10, 0).AddDate(0, 0, 8)
	cal := model.ParticipantCalendar{
		ParticipantID: "alice",
		Events: []model.Event{
			{ID: "cancelled", Start: at(3, 10, 0), End: at(3, 11, 0), Timezone: "UTC", Status: model.StatusCancelled},
			{ID: "inverted", Start: at(4, 11, 0), End: at(4, 10, 0), Timezone: "UTC", Status: model.StatusConfirmed},
			{ID: "long", Start: at(2, 10, 0), End: longEnd, Timezone: "UTC", Status: model.StatusConfirmed},
			{ID: "untitled", Title: "   ", Start: at(5, 10, 0), End: at(5, 11, 0), Timezone: "UTC", Status: model.StatusConfirmed},
		},
	}

	res, err := NewProcessor().ProcessCalendar(cal, testWindow)
	if err != nil {
		t.Fatalf("ProcessCalendar() error = %v", err)
	}

	ids := make([]string, 0, len(res.Events))
	for _, ev := range res.Events {
		ids = append(ids, ev.ID)
	}
	if diff := cmp.Diff([]string{"long", "untitled"}, ids); diff != "" {
		t.Errorf("kept events mismatch (-want +got):\n%s", diff)
	}

	// Cancelled drop and >7d span are warnings; the inverted event is an error.
	if len(res.Warnings) != 2 {
		t.Errorf("warnings = %v, want 2 entries", res.Warnings)
	}
	if len(res.Errors) != 1 {
		t.Errorf("errors = %v, want 1 entry", res.Errors)
	}

	for _, ev := range res.Events {
		if ev.ID == "untitled" && ev.Title != "Untitled event" {
			t.Errorf("empty title = %q, want placeholder", ev.Title)
		}
	}
}

func TestProcessCalendarNormalizesZones(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	cal := model.ParticipantCalendar{
		ParticipantID: "alice",
		Events: []model.Event{{
			ID:       "e1",
			Start:    time.Date(2024, 1, 15, 10, 0, 0, 0, ny),
			End:      time.Date(2024, 1, 15, 11, 0, 0, 0, ny),
			Timezone: "America/New_York",
			Status:   model.StatusConfirmed,
		}},
	}

	res, err := NewProcessor().ProcessCalendar(cal, testWindow)
	if err != nil {
		t.Fatalf("ProcessCalendar() error = %v", err)
	}
	ev := res.Events[0]
	if ev.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC after normalization", ev.Timezone)
	}
	if !ev.Start.Equal(time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v, want 15:00 UTC", ev.Start)
	}
}

func TestProcessCalendarMixedFrameInstants(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	// Start anchored in the declared zone, end already absolute; the event
	// zone must not reinterpret the end's wall clock.
	cal := model.ParticipantCalendar{
		ParticipantID: "alice",
		Events: []model.Event{{
			ID:       "e1",
			Start:    time.Date(2024, 1, 15, 10, 0, 0, 0, ny),
			End:      time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC),
			Timezone: "America/New_York",
			Status:   model.StatusConfirmed,
		}},
	}

	res, err := NewProcessor().ProcessCalendar(cal, testWindow)
	if err != nil {
		t.Fatalf("ProcessCalendar() error = %v", err)
	}
	ev := res.Events[0]
	if !ev.Start.Equal(time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v, want 15:00 UTC", ev.Start)
	}
	if !ev.End.Equal(time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC)) {
		t.Errorf("End = %v, want 16:00 UTC unchanged", ev.End)
	}

	wantBusy := []model.BusyPeriod{{
		Start:    time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC),
		EventIDs: []string{"e1"},
	}}
	if diff := cmp.Diff(wantBusy, res.BusyPeriods); diff != "" {
		t.Errorf("busy periods mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessCalendarExpandsRecurring(t *testing.T) {
	t.Parallel()

	ev := utcEvent("weekly", at(1, 9, 0), at(1, 9, 30))
	ev.Recurrence = &model.RecurrenceRule{Frequency: model.FreqWeekly, Interval: 1, Count: 3}

	cal := model.ParticipantCalendar{ParticipantID: "alice", Events: []model.Event{ev}}
	res, err := NewProcessor().ProcessCalendar(cal, testWindow)
	if err != nil {
		t.Fatalf("ProcessCalendar() error = %v", err)
	}
	if len(res.Events) != 3 {
		t.Errorf("got %d events, want 3 expanded occurrences", len(res.Events))
	}
	if len(res.BusyPeriods) != 3 {
		t.Errorf("got %d busy periods, want 3 separate ones", len(res.BusyPeriods))
	}
}

func TestProcessCalendarMissingParticipant(t *testing.T) {
	t.Parallel()

	_, err := NewProcessor().ProcessCalendar(model.ParticipantCalendar{Source: "upload"}, testWindow)
	procErr, ok := err.(*CalendarProcessingError)
	if !ok {
		t.Fatalf("error = %v, want *CalendarProcessingError", err)
	}
	if procErr.Source != "upload" {
		t.Errorf("Source = %q, want upload", procErr.Source)
	}
}

func TestBusyPeriodsFor(t *testing.T) {
	t.Parallel()

	participants := []model.ParticipantCalendar{
		{ParticipantID: "alice", Events: []model.Event{utcEvent("a1", at(15, 10, 0), at(15, 11, 0))}},
		{ParticipantID: "bob", Events: []model.Event{utcEvent("b1", at(15, 14, 0), at(15, 15, 0))}},
		{ParticipantID: "carol"},
	}

	busy, err := NewProcessor().BusyPeriodsFor(participants, testWindow)
	if err != nil {
		t.Fatalf("BusyPeriodsFor() error = %v", err)
	}
	if len(busy) != 3 {
		t.Fatalf("got %d entries, want 3", len(busy))
	}
	if len(busy["alice"]) != 1 || len(busy["bob"]) != 1 || len(busy["carol"]) != 0 {
		t.Errorf("busy periods = %+v", busy)
	}
}

func TestFindFreeTimeSlots(t *testing.T) {
	t.Parallel()

	busy := map[string][]model.BusyPeriod{
		"alice": {{Start: at(15, 10, 0), End: at(15, 11, 0)}},
		"bob":   {{Start: at(15, 12, 0), End: at(15, 13, 0)}},
	}
	window := model.SearchRange{Start: at(15, 9, 0), End: at(15, 14, 0)}

	slots := FindFreeTimeSlots(busy, window, 60)
	for _, slot := range slots {
		for pid, periods := range busy {
			if overlapsAny(periods, slot.Start, slot.End) {
				t.Errorf("slot [%v, %v) overlaps %s's busy period", slot.Start, slot.End, pid)
			}
		}
	}

	// 09:00 is free for a full hour; 10:00 through 10:45 are not.
	if len(slots) == 0 || !slots[0].Start.Equal(at(15, 9, 0)) {
		t.Fatalf("first slot = %+v, want 09:00", slots)
	}
	for _, slot := range slots {
		if slot.Start.After(at(15, 9, 0)) && slot.Start.Before(at(15, 11, 0)) {
			t.Errorf("slot at %v should be blocked by alice's 10:00-11:00 event", slot.Start)
		}
	}
}
