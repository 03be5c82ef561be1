// Package recur parses recurrence rule strings into their tagged form and
// expands recurring events into concrete occurrences within a window.
package recur

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"meetsched/internal/model"
)

var weekdayTokens = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var frequencies = map[string]model.Frequency{
	"SECONDLY": model.FreqSecondly,
	"MINUTELY": model.FreqMinutely,
	"HOURLY":   model.FreqHourly,
	"DAILY":    model.FreqDaily,
	"WEEKLY":   model.FreqWeekly,
	"MONTHLY":  model.FreqMonthly,
	"YEARLY":   model.FreqYearly,
}

// ParseRule parses a semicolon-delimited RRULE value ("FREQ=WEEKLY;COUNT=4")
// into a RecurrenceRule. It fails when no recognized FREQ token is present;
// callers treat that as a recoverable condition and keep the event as a
// single occurrence.
func ParseRule(value string) (*model.RecurrenceRule, error) {
	value = strings.TrimSpace(strings.TrimPrefix(value, "RRULE:"))
	if value == "" {
		return nil, fmt.Errorf("empty recurrence rule")
	}

	rule := &model.RecurrenceRule{Interval: 1}
	seenFreq := false

	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "FREQ":
			freq, ok := frequencies[strings.ToUpper(val)]
			if !ok {
				return nil, fmt.Errorf("unrecognized frequency %q", val)
			}
			rule.Frequency = freq
			seenFreq = true
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid interval %q", val)
			}
			rule.Interval = n
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid count %q", val)
			}
			rule.Count = n
		case "UNTIL":
			t, err := parseUntil(val)
			if err != nil {
				return nil, fmt.Errorf("invalid until %q: %w", val, err)
			}
			rule.Until = &t
		case "BYDAY":
			for _, tok := range strings.Split(val, ",") {
				// Strip any ordinal prefix like -1SU or 2MO.
				tok = strings.TrimSpace(tok)
				if len(tok) > 2 {
					tok = tok[len(tok)-2:]
				}
				wd, ok := weekdayTokens[strings.ToUpper(tok)]
				if !ok {
					return nil, fmt.Errorf("invalid weekday token %q", tok)
				}
				rule.ByWeekday = append(rule.ByWeekday, wd)
			}
		case "BYMONTHDAY":
			for _, tok := range strings.Split(val, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(tok))
				if err != nil || n == 0 || n < -31 || n > 31 {
					return nil, fmt.Errorf("invalid month day %q", tok)
				}
				rule.ByMonthDay = append(rule.ByMonthDay, n)
			}
		case "BYMONTH":
			for _, tok := range strings.Split(val, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(tok))
				if err != nil || n < 1 || n > 12 {
					return nil, fmt.Errorf("invalid month %q", tok)
				}
				rule.ByMonth = append(rule.ByMonth, time.Month(n))
			}
		}
	}

	if !seenFreq {
		return nil, fmt.Errorf("recurrence rule has no FREQ token")
	}
	return rule, nil
}

func parseUntil(v string) (time.Time, error) {
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.Parse("20060102T150405", v)
	}
	return time.Parse("20060102", v)
}

// ValidateRule flags risk patterns in a rule without rejecting it. The
// returned strings are advisory warnings for upstream callers; the only
// hard invalidity called out is second-level frequency.
func ValidateRule(rule *model.RecurrenceRule) []string {
	if rule == nil {
		return nil
	}

	var warnings []string

	interval := rule.Interval
	if interval <= 0 {
		interval = 1
	}

	if rule.Frequency == model.FreqSecondly {
		warnings = append(warnings, "second-level recurrence frequency is invalid")
	}
	if rule.Frequency == model.FreqMinutely && interval < 15 {
		warnings = append(warnings, fmt.Sprintf("recurrence granularity below 15 minutes (interval %d)", interval))
	}
	if !rule.Bounded() {
		if n := projectedOccurrences(rule, 5*365); n > 2000 {
			warnings = append(warnings, fmt.Sprintf("unbounded rule projects %d occurrences over 5 years", n))
		}
	}

	return warnings
}

// projectedOccurrences estimates how many occurrences a rule would produce
// over the given number of days, ignoring BY-filters that only narrow the
// set beyond the dominant term.
func projectedOccurrences(rule *model.RecurrenceRule, days int) int {
	interval := rule.Interval
	if interval <= 0 {
		interval = 1
	}

	var perDay float64
	switch rule.Frequency {
	case model.FreqSecondly:
		perDay = 86400
	case model.FreqMinutely:
		perDay = 1440
	case model.FreqHourly:
		perDay = 24
	case model.FreqDaily:
		perDay = 1
	case model.FreqWeekly:
		n := len(rule.ByWeekday)
		if n == 0 {
			n = 1
		}
		perDay = float64(n) / 7
	case model.FreqMonthly:
		n := len(rule.ByMonthDay)
		if n == 0 {
			n = 1
		}
		perDay = float64(n) / 30
	case model.FreqYearly:
		perDay = 1.0 / 365
	default:
		return 0
	}

	return int(perDay * float64(days) / float64(interval))
}
