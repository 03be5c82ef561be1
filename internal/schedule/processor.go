// Package schedule merges participant calendars into busy intervals and
// searches them for candidate meeting slots.
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	appLog "meetsched/internal/log"
	"meetsched/internal/model"
	"meetsched/internal/recur"
	"meetsched/internal/tz"
)

const (
	maxEventSpan = 7 * 24 * time.Hour

	defaultLookbackDays = 30
	defaultHorizonDays  = 365

	untitledEvent = "Untitled event"
)

// Processor orchestrates recurrence expansion, timezone normalization,
// cleaning, conflict detection and busy-period construction per participant.
// It holds no per-request state and is safe for concurrent use.
type Processor struct {
	// MaxOccurrences caps recurrence expansion per event.
	MaxOccurrences int
}

func NewProcessor() *Processor {
	return &Processor{MaxOccurrences: recur.DefaultMaxOccurrences}
}

// ProcessResult is the outcome of processing one participant's calendar.
type ProcessResult struct {
	ParticipantID string

	// Events is the expanded, normalized, cleaned list, sorted by start.
	Events []model.Event

	BusyPeriods []model.BusyPeriod
	Conflicts   []model.EventConflict

	// Warnings record per-event conditions that were recovered locally;
	// Errors record events that had to be dropped.
	Warnings []string
	Errors   []string
}

// ProcessCalendar runs the full per-participant pipeline. A zero window
// defaults to 30 days back through 365 days ahead of now.
func (p *Processor) ProcessCalendar(cal model.ParticipantCalendar, window recur.Window) (*ProcessResult, error) {
	if cal.ParticipantID == "" {
		return nil, &CalendarProcessingError{
			Source:  cal.Source,
			Message: "calendar has no participant id",
		}
	}
	if window.Start.IsZero() && window.End.IsZero() {
		now := time.Now().UTC()
		window = recur.Window{
			Start: now.AddDate(0, 0, -defaultLookbackDays),
			End:   now.AddDate(0, 0, defaultHorizonDays),
		}
	}

	res := &ProcessResult{ParticipantID: cal.ParticipantID}

	// Expansion first, normalization second: occurrences inherit the parent
	// zone and get rewritten along with everything else.
	expanded := make([]model.Event, 0, len(cal.Events))
	for _, ev := range cal.Events {
		expanded = append(expanded, recur.Expand(ev, window, p.MaxOccurrences)...)
	}

	for i := range expanded {
		normalizeEvent(&expanded[i])
	}

	cleaned := p.clean(expanded, res)

	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].Start.Before(cleaned[j].Start)
	})

	res.Events = cleaned
	res.Conflicts = detectConflicts(cleaned)
	res.BusyPeriods = mergeBusyPeriods(cleaned)

	appLog.Debug("calendar processed",
		"participant", cal.ParticipantID,
		"events", len(res.Events),
		"busy_periods", len(res.BusyPeriods),
		"conflicts", len(res.Conflicts),
		"warnings", len(res.Warnings),
		"errors", len(res.Errors),
	)
	return res, nil
}

// normalizeEvent presents the event's instants in the reference frame.
// Every ingestion path anchors each instant in its own frame already (a
// start and end may arrive in different frames), so only the presentation
// location changes here; reinterpreting wall clocks at this stage would
// shift instants that were never expressed in the event-level zone.
func normalizeEvent(e *model.Event) {
	e.Start = e.Start.In(time.UTC)
	e.End = e.End.In(time.UTC)
	e.Timezone = tz.ReferenceZone
}

func (p *Processor) clean(events []model.Event, res *ProcessResult) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Status == model.StatusCancelled {
			res.Warnings = append(res.Warnings, fmt.Sprintf("dropped cancelled event %q", ev.ID))
			continue
		}
		if ev.ID == "" || ev.Start.IsZero() || ev.End.IsZero() {
			res.Errors = append(res.Errors, fmt.Sprintf("dropped event %q: missing required fields", ev.ID))
			continue
		}
		if !ev.Start.Before(ev.End) {
			res.Errors = append(res.Errors, fmt.Sprintf("dropped event %q: start is not before end", ev.ID))
			continue
		}
		if ev.Duration() > maxEventSpan {
			res.Warnings = append(res.Warnings, fmt.Sprintf("event %q spans more than 7 days", ev.ID))
		}

		ev.Title = strings.TrimSpace(ev.Title)
		if ev.Title == "" {
			ev.Title = untitledEvent
		}
		out = append(out, ev)
	}
	return out
}

// detectConflicts sweeps a start-sorted list and reports every strictly
// overlapping pair. Touching events are not conflicts. The early break is
// safe because the list is sorted by start.
func detectConflicts(sorted []model.Event) []model.EventConflict {
	var conflicts []model.EventConflict
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if !sorted[j].Start.Before(sorted[i].End) {
				break
			}
			overlapEnd := sorted[i].End
			if sorted[j].End.Before(overlapEnd) {
				overlapEnd = sorted[j].End
			}
			conflicts = append(conflicts, model.EventConflict{
				Event1:         sorted[i],
				Event2:         sorted[j],
				OverlapStart:   sorted[j].Start,
				OverlapEnd:     overlapEnd,
				OverlapMinutes: int(overlapEnd.Sub(sorted[j].Start).Minutes()),
			})
		}
	}
	return conflicts
}

// mergeBusyPeriods folds a start-sorted event list into contiguous busy
// intervals. An event whose start touches the current interval's end extends
// it rather than opening a new one.
func mergeBusyPeriods(sorted []model.Event) []model.BusyPeriod {
	if len(sorted) == 0 {
		return nil
	}

	periods := make([]model.BusyPeriod, 0, len(sorted))
	current := model.BusyPeriod{
		Start:    sorted[0].Start,
		End:      sorted[0].End,
		EventIDs: []string{sorted[0].ID},
	}

	for _, ev := range sorted[1:] {
		if !ev.Start.After(current.End) {
			if ev.End.After(current.End) {
				current.End = ev.End
			}
			current.EventIDs = append(current.EventIDs, ev.ID)
			continue
		}
		periods = append(periods, current)
		current = model.BusyPeriod{
			Start:    ev.Start,
			End:      ev.End,
			EventIDs: []string{ev.ID},
		}
	}
	return append(periods, current)
}

// BusyPeriodsFor computes every participant's busy periods for the window in
// parallel. Participants are independent, so each gets its own worker; the
// per-index result slots avoid any shared write target before the reduce.
func (p *Processor) BusyPeriodsFor(participants []model.ParticipantCalendar, window recur.Window) (map[string][]model.BusyPeriod, error) {
	results := make([]*ProcessResult, len(participants))
	errs := make([]error, len(participants))

	var wg sync.WaitGroup
	for i := range participants {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.ProcessCalendar(participants[i], window)
		}(i)
	}
	wg.Wait()

	busy := make(map[string][]model.BusyPeriod, len(participants))
	for i, res := range results {
		if errs[i] != nil {
			return nil, errs[i]
		}
		busy[res.ParticipantID] = res.BusyPeriods
	}
	return busy, nil
}

// FindFreeTimeSlots walks the window in 15-minute steps and emits every
// candidate of the given duration that overlaps no participant's busy
// periods. It is the low-level primitive underneath the scheduler; slots
// come back unscored.
func FindFreeTimeSlots(busyByParticipant map[string][]model.BusyPeriod, window model.SearchRange, durationMinutes int) []model.TimeSlot {
	if durationMinutes <= 0 || !window.Start.Before(window.End) {
		return nil
	}

	duration := time.Duration(durationMinutes) * time.Minute
	var slots []model.TimeSlot

	for start := window.Start; !start.Add(duration).After(window.End); start = start.Add(candidateStride) {
		end := start.Add(duration)
		free := true
		for _, periods := range busyByParticipant {
			if overlapsAny(periods, start, end) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, model.TimeSlot{Start: start, End: end})
		}
	}
	return slots
}

// overlapsAny uses the strict interval test: touching does not overlap.
func overlapsAny(periods []model.BusyPeriod, start, end time.Time) bool {
	for _, bp := range periods {
		if bp.Start.Before(end) && start.Before(bp.End) {
			return true
		}
	}
	return false
}
