package recur

import (
	"strconv"
	"time"

	"github.com/teambition/rrule-go"

	appLog "meetsched/internal/log"
	"meetsched/internal/model"
)

// DefaultMaxOccurrences caps expansion work for pathological rules.
const DefaultMaxOccurrences = 1000

// Window bounds recurrence expansion.
type Window struct {
	Start time.Time
	End   time.Time
}

// Intersects reports whether the event touches the window at all. Touching
// endpoints count: the test is the complement of "entirely outside".
func (w Window) Intersects(e model.Event) bool {
	return !(e.Start.After(w.End) || e.End.Before(w.Start))
}

var rruleFrequencies = map[model.Frequency]rrule.Frequency{
	model.FreqSecondly: rrule.SECONDLY,
	model.FreqMinutely: rrule.MINUTELY,
	model.FreqHourly:   rrule.HOURLY,
	model.FreqDaily:    rrule.DAILY,
	model.FreqWeekly:   rrule.WEEKLY,
	model.FreqMonthly:  rrule.MONTHLY,
	model.FreqYearly:   rrule.YEARLY,
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Expand materializes an event inside the window. Non-recurring events are
// returned as-is when they intersect the window. Recurring events produce one
// derived Event per generated start, each preserving the parent's duration
// and deriving a unique id from the parent id plus the occurrence start.
//
// Expansion never fails upward: a rule that cannot be evaluated falls back to
// the unexpanded parent event if it intersects the window, otherwise nothing.
func Expand(event model.Event, window Window, maxOccurrences int) []model.Event {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}

	if event.Recurrence == nil {
		if window.Intersects(event) {
			return []model.Event{event}
		}
		return nil
	}

	starts, err := occurrenceStarts(event, window, maxOccurrences)
	if err != nil {
		appLog.Warn("recurrence expansion failed, keeping parent event",
			"event_id", event.ID, "reason", err.Error())
		if window.Intersects(event) {
			parent := event
			parent.Recurrence = nil
			parent.Exclusions = nil
			return []model.Event{parent}
		}
		return nil
	}

	duration := event.Duration()
	out := make([]model.Event, 0, len(starts))
	for _, start := range starts {
		inst := event
		inst.Recurrence = nil
		inst.Exclusions = nil
		inst.Start = start
		inst.End = start.Add(duration)
		inst.ID = event.ID + "-" + strconv.FormatInt(start.UnixMilli(), 10)
		out = append(out, inst)
	}
	return out
}

// occurrenceStarts runs the rule through rrule-go. The window end is padded
// by one day so occurrences that begin just before the window closes but
// span past it are not clipped.
func occurrenceStarts(event model.Event, window Window, maxOccurrences int) ([]time.Time, error) {
	rule := event.Recurrence

	freq, ok := rruleFrequencies[rule.Frequency]
	if !ok {
		return nil, &ruleError{"unmapped frequency " + string(rule.Frequency)}
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: rule.Interval,
		Count:    rule.Count,
		Dtstart:  event.Start,
	}
	if rule.Until != nil {
		opt.Until = *rule.Until
	}
	for _, wd := range rule.ByWeekday {
		rwd, ok := rruleWeekdays[wd]
		if !ok {
			return nil, &ruleError{"unmapped weekday"}
		}
		opt.Byweekday = append(opt.Byweekday, rwd)
	}
	for _, md := range rule.ByMonthDay {
		opt.Bymonthday = append(opt.Bymonthday, md)
	}
	for _, m := range rule.ByMonth {
		opt.Bymonth = append(opt.Bymonth, int(m))
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}

	// A set carries the exclusion dates alongside the rule. Exclusions are
	// aligned to the series anchor's location so instant equality matches
	// generated occurrences.
	var set rrule.Set
	set.RRule(r)
	for _, ex := range event.Exclusions {
		set.ExDate(ex.In(event.Start.Location()))
	}

	starts := set.Between(window.Start, window.End.AddDate(0, 0, 1), true)
	if len(starts) > maxOccurrences {
		appLog.Warn("recurrence expansion capped",
			"event_id", event.ID, "cap", maxOccurrences)
		starts = starts[:maxOccurrences]
	}
	return starts, nil
}

type ruleError struct{ msg string }

func (e *ruleError) Error() string { return e.msg }
