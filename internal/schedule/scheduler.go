package schedule

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	appLog "meetsched/internal/log"
	"meetsched/internal/model"
	"meetsched/internal/recur"
	"meetsched/internal/tz"
)

const (
	candidateStride = 15 * time.Minute

	maxMeetingMinutes = 480
	maxBufferMinutes  = 60

	defaultRecommendations = 5

	slotDisplayLayout = "Mon Jan 2 2006, 15:04"
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Scheduler searches a window for candidate meeting slots, scores them
// against preferences and summarizes conflicts. Each invocation is a pure
// function of its inputs; independent requests may run concurrently.
type Scheduler struct {
	proc *Processor

	// TopN is the number of recommendations to return.
	TopN int
}

func NewScheduler(proc *Processor) *Scheduler {
	if proc == nil {
		proc = NewProcessor()
	}
	return &Scheduler{proc: proc, TopN: defaultRecommendations}
}

// ScheduleOptimalMeeting generates, tests and scores candidate slots for the
// given participants and preferences within searchRange.
func (s *Scheduler) ScheduleOptimalMeeting(participants []model.ParticipantCalendar, prefs model.MeetingPreferences, searchRange model.SearchRange) (*model.SchedulingResult, error) {
	if err := validateRequest(participants, prefs, searchRange); err != nil {
		return nil, err
	}

	window := recur.Window{Start: searchRange.Start, End: searchRange.End}
	busy, err := s.proc.BusyPeriodsFor(participants, window)
	if err != nil {
		return nil, err
	}

	rangeStart, _ := parseClock(prefs.TimeRangeStart)
	rangeEnd, _ := parseClock(prefs.TimeRangeEnd)
	reserved := time.Duration(prefs.Duration+prefs.BufferTime) * time.Minute
	duration := time.Duration(prefs.Duration) * time.Minute

	zones := participantZones(participants)
	excluded := excludedDaySet(prefs.ExcludedDates)

	var slots []model.TimeSlot

	for day := startOfDay(searchRange.Start); day.Before(searchRange.End); day = day.AddDate(0, 0, 1) {
		if prefs.ExcludeWeekends && (day.Weekday() == time.Saturday || day.Weekday() == time.Sunday) {
			continue
		}
		if _, skip := excluded[dayKey(day)]; skip {
			continue
		}

		dayStart := day.Add(rangeStart)
		dayEnd := day.Add(rangeEnd)

		// Buffer time is reserved against the day window but the emitted
		// slot spans only the meeting itself.
		for cand := dayStart; !cand.Add(reserved).After(dayEnd); cand = cand.Add(candidateStride) {
			// Candidates must lie inside the search range: busy periods are
			// only computed for that window, so anything outside it would be
			// tested against missing data.
			if cand.Before(searchRange.Start) || cand.Add(duration).After(searchRange.End) {
				continue
			}
			slot := model.TimeSlot{
				Start: cand,
				End:   cand.Add(duration),
			}
			for _, p := range participants {
				if overlapsAny(busy[p.ParticipantID], slot.Start, slot.End) {
					slot.Conflicts = append(slot.Conflicts, p.ParticipantID)
				}
			}
			slot.Score = scoreSlot(slot, participants, prefs, rangeStart, rangeEnd)
			slot.TimezoneDisplay = displayByZone(slot, zones)
			slots = append(slots, slot)
		}
	}

	result := &model.SchedulingResult{
		AvailableSlots:   slots,
		ConflictAnalysis: analyzeConflicts(slots),
		Recommendations:  topSlots(slots, s.TopN),
	}

	appLog.Info("scheduling completed",
		"participants", len(participants),
		"slots", len(slots),
		"total_conflicts", result.ConflictAnalysis.TotalConflicts,
	)
	return result, nil
}

func validateRequest(participants []model.ParticipantCalendar, prefs model.MeetingPreferences, searchRange model.SearchRange) error {
	if len(participants) == 0 {
		return &SchedulingError{Code: CodeNoParticipants, Message: "no participants given"}
	}
	if prefs.Duration <= 0 || prefs.Duration > maxMeetingMinutes {
		return &SchedulingError{
			Code:    CodeInvalidDuration,
			Message: fmt.Sprintf("duration must be between 1 and %d minutes", maxMeetingMinutes),
		}
	}
	if prefs.BufferTime < 0 || prefs.BufferTime > maxBufferMinutes {
		return &SchedulingError{
			Code:    CodeInvalidDuration,
			Message: fmt.Sprintf("buffer time must be between 0 and %d minutes", maxBufferMinutes),
		}
	}
	if !searchRange.Start.Before(searchRange.End) {
		return &SchedulingError{Code: CodeInvalidRange, Message: "search range start must be before end"}
	}
	if !clockPattern.MatchString(prefs.TimeRangeStart) || !clockPattern.MatchString(prefs.TimeRangeEnd) {
		return &SchedulingError{Code: CodeInvalidTimeRange, Message: "time range must match HH:MM"}
	}
	start, _ := parseClock(prefs.TimeRangeStart)
	end, _ := parseClock(prefs.TimeRangeEnd)
	if start >= end {
		return &SchedulingError{Code: CodeInvalidTimeRange, Message: "time range start must be before end"}
	}
	return nil
}

// parseClock turns "HH:MM" into an offset from midnight.
func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// scoreSlot starts at 100, penalizes conflicts proportionally, rewards
// closeness to the midpoint of the business-hours window and preferred
// participant zones, then clamps into [0,100].
//
// The midpoint bonus intentionally uses the reference-frame clock of the
// candidate, not any participant's local hour.
func scoreSlot(slot model.TimeSlot, participants []model.ParticipantCalendar, prefs model.MeetingPreferences, rangeStart, rangeEnd time.Duration) int {
	score := 100.0

	score -= float64(len(slot.Conflicts)) / float64(len(participants)) * 50

	midpoint := (rangeStart + rangeEnd) / 2
	halfWindow := (rangeEnd - rangeStart) / 2
	if halfWindow > 0 {
		slotClock := time.Duration(slot.Start.UTC().Hour())*time.Hour + time.Duration(slot.Start.UTC().Minute())*time.Minute
		dist := slotClock - midpoint
		if dist < 0 {
			dist = -dist
		}
		if dist < halfWindow {
			score += 10 * (1 - float64(dist)/float64(halfWindow))
		}
	}

	if len(prefs.PreferredTimezones) > 0 {
		preferred := make(map[string]bool, len(prefs.PreferredTimezones))
		for _, z := range prefs.PreferredTimezones {
			preferred[z] = true
		}
		matching := 0
		for _, p := range participants {
			if preferred[p.Timezone] {
				matching++
			}
		}
		score += 5 * float64(matching) / float64(len(participants))
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(score + 0.5)
}

// participantZones returns the distinct home zones, insertion-ordered.
func participantZones(participants []model.ParticipantCalendar) []string {
	seen := make(map[string]bool)
	var zones []string
	for _, p := range participants {
		zone := p.Timezone
		if zone == "" {
			zone = tz.ReferenceZone
		}
		if !seen[zone] {
			seen[zone] = true
			zones = append(zones, zone)
		}
	}
	return zones
}

func displayByZone(slot model.TimeSlot, zones []string) map[string]string {
	display := make(map[string]string, len(zones))
	for _, zone := range zones {
		display[zone] = tz.Format(slot.Start, zone, slotDisplayLayout) +
			" - " + tz.Format(slot.End, zone, "15:04")
	}
	return display
}

func analyzeConflicts(slots []model.TimeSlot) model.ConflictAnalysis {
	analysis := model.ConflictAnalysis{
		ByParticipant: make(map[string]int),
		BySlot:        make(map[string][]string),
	}
	for _, slot := range slots {
		if len(slot.Conflicts) == 0 {
			continue
		}
		analysis.TotalConflicts += len(slot.Conflicts)
		for _, pid := range slot.Conflicts {
			analysis.ByParticipant[pid]++
		}
		analysis.BySlot[slotKey(slot)] = append([]string(nil), slot.Conflicts...)
	}
	return analysis
}

func slotKey(slot model.TimeSlot) string {
	return slot.Start.UTC().Format(time.RFC3339) + "/" + slot.End.UTC().Format(time.RFC3339)
}

// topSlots picks the n best slots by score. The sort is stable, so ties keep
// their original generation order.
func topSlots(slots []model.TimeSlot, n int) []model.TimeSlot {
	ranked := append([]model.TimeSlot(nil), slots...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// FindAlternativeSuggestions proposes slots with strictly fewer conflicts
// than the worst slot in an already-computed result, as a "fewer
// participants" fallback. Advisory only.
func FindAlternativeSuggestions(result *model.SchedulingResult) []model.TimeSlot {
	if result == nil || len(result.AvailableSlots) == 0 {
		return nil
	}

	worst := 0
	for _, slot := range result.AvailableSlots {
		if len(slot.Conflicts) > worst {
			worst = len(slot.Conflicts)
		}
	}
	if worst == 0 {
		return nil
	}

	var alternatives []model.TimeSlot
	for _, slot := range result.AvailableSlots {
		if len(slot.Conflicts) < worst {
			alternatives = append(alternatives, slot)
		}
	}
	sort.SliceStable(alternatives, func(i, j int) bool {
		return alternatives[i].Score > alternatives[j].Score
	})
	return alternatives
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func excludedDaySet(dates []time.Time) map[string]struct{} {
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		set[dayKey(d)] = struct{}{}
	}
	return set
}
