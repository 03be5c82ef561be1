package model

import "time"

// EventStatus is the scheduling status carried by a calendar event.
type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

// Frequency is the repeat frequency of a recurrence rule.
type Frequency string

const (
	FreqSecondly Frequency = "SECONDLY"
	FreqMinutely Frequency = "MINUTELY"
	FreqHourly   Frequency = "HOURLY"
	FreqDaily    Frequency = "DAILY"
	FreqWeekly   Frequency = "WEEKLY"
	FreqMonthly  Frequency = "MONTHLY"
	FreqYearly   Frequency = "YEARLY"
)

// RecurrenceRule is the parsed form of an RRULE string. It is owned by the
// Event that carries it and consumed only by the recurrence expander; other
// components treat it as opaque.
type RecurrenceRule struct {
	Frequency  Frequency
	Interval   int        // repeat every N units; 0 means 1
	Count      int        // number of occurrences; 0 means unbounded
	Until      *time.Time // inclusive end instant; nil means unbounded
	ByWeekday  []time.Weekday
	ByMonthDay []int
	ByMonth    []time.Month
}

// Bounded reports whether the rule carries any end condition.
func (r *RecurrenceRule) Bounded() bool {
	return r != nil && (r.Count > 0 || r.Until != nil)
}

// Event is a single calendar occurrence, either parsed from interchange text
// or delivered by a provider adapter. Recurrence expansion produces new
// derived Events rather than mutating the parent.
type Event struct {
	ID       string
	Title    string
	Start    time.Time
	End      time.Time
	Timezone string // IANA zone name, or "UTC" once normalized
	Status   EventStatus

	Recurrence *RecurrenceRule

	// Exclusions are occurrence start instants removed from recurrence
	// expansion (EXDATE). Ignored when Recurrence is nil.
	Exclusions []time.Time
}

// Duration returns the event's span.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps reports whether the event strictly overlaps [start, end).
// Touching intervals do not overlap.
func (e Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && start.Before(e.End)
}

// ParticipantCalendar is one participant's full event set plus identity.
// It is owned by the caller for the duration of a single scheduling request.
type ParticipantCalendar struct {
	ParticipantID string
	Name          string
	Timezone      string
	Source        string // "ical", "google", "upload", ...
	Events        []Event
}

// BusyPeriod is a merged, non-overlapping interval of unavailability for one
// participant. Within a participant's list, periods are sorted by start and
// pairwise non-overlapping; touching source events are merged into one.
type BusyPeriod struct {
	Start    time.Time
	End      time.Time
	EventIDs []string // ids of every contributing event
}

// EventConflict is a detected overlap between two events of the same
// participant. Read-only once constructed.
type EventConflict struct {
	Event1         Event
	Event2         Event
	OverlapStart   time.Time
	OverlapEnd     time.Time
	OverlapMinutes int
}

// TimeSlot is one scored scheduling candidate. Start/End reflect the meeting
// duration only; any configured buffer time is reserved during generation but
// not exposed here.
type TimeSlot struct {
	Start time.Time
	End   time.Time

	// Score is in [0,100]; higher is better.
	Score int

	// Conflicts lists the participant ids busy during this slot.
	Conflicts []string

	// TimezoneDisplay maps a zone name to the slot formatted in that zone.
	TimezoneDisplay map[string]string
}

// MeetingPreferences are the caller's scheduling constraints.
type MeetingPreferences struct {
	Duration       int    // minutes, > 0 and <= 480
	TimeRangeStart string // "HH:MM", local clock time
	TimeRangeEnd   string // "HH:MM", strictly after TimeRangeStart

	ExcludeWeekends bool
	ExcludedDates   []time.Time // compared at day granularity

	// BufferTime (minutes, 0-60) is added to slot spacing but not to the
	// displayed slot duration.
	BufferTime int

	// PreferredTimezones earn a scoring bonus; they never filter slots.
	PreferredTimezones []string
}

// SearchRange bounds the scheduling search window.
type SearchRange struct {
	Start time.Time
	End   time.Time
}

// ConflictAnalysis aggregates conflict counts across a scheduling pass.
type ConflictAnalysis struct {
	TotalConflicts int

	// ByParticipant counts conflicting slots per participant id.
	ByParticipant map[string]int

	// BySlot maps a slot identity (start/end, RFC3339) to the conflicting
	// participant ids for that slot.
	BySlot map[string][]string
}

// SchedulingResult is the outcome of one scheduling computation.
type SchedulingResult struct {
	AvailableSlots   []TimeSlot
	ConflictAnalysis ConflictAnalysis

	// Recommendations are the top slots by score, best first.
	Recommendations []TimeSlot
}
