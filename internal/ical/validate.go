package ical

import (
	"fmt"
	"strings"
	"time"
)

// Validate runs the structural pre-check over raw interchange text and
// returns one description per defect. It is independent of Parse: callers
// typically run it first and report every problem at once. An empty result
// means the text is structurally sound.
func Validate(text string) []string {
	var defects []string

	lines := unfold(text)

	sawBegin := false
	sawEnd := false
	inEvent := false
	eventIndex := 0
	var current eventCheck

	for _, line := range lines {
		name, params, value := splitContentLine(line)

		switch {
		case name == "BEGIN" && value == "VCALENDAR":
			sawBegin = true
		case name == "END" && value == "VCALENDAR":
			sawEnd = true
		case name == "BEGIN" && value == "VEVENT":
			if inEvent {
				defects = append(defects, fmt.Sprintf("event %d: BEGIN:VEVENT before previous event ended", eventIndex+1))
			}
			inEvent = true
			eventIndex++
			current = eventCheck{index: eventIndex}
		case name == "END" && value == "VEVENT":
			if !inEvent {
				defects = append(defects, "END:VEVENT without matching BEGIN:VEVENT")
				continue
			}
			defects = append(defects, current.defects()...)
			inEvent = false
		case inEvent:
			current.observe(name, params, value)
		}
	}

	if !sawBegin {
		defects = append(defects, "missing BEGIN:VCALENDAR marker")
	}
	if !sawEnd {
		defects = append(defects, "missing END:VCALENDAR marker")
	}
	if inEvent {
		defects = append(defects, fmt.Sprintf("event %d: missing END:VEVENT", eventIndex))
	}

	return defects
}

// ValidateStrict wraps Validate's defect list into a ValidationError, or nil
// when the text is clean.
func ValidateStrict(text string) error {
	defects := Validate(text)
	if len(defects) == 0 {
		return nil
	}
	return &ValidationError{Defects: defects}
}

// eventCheck accumulates per-event observations during the structural walk.
type eventCheck struct {
	index    int
	hasUID   bool
	hasStart bool
	badDates []string
}

func (c *eventCheck) observe(name, _ string, value string) {
	switch name {
	case "UID":
		c.hasUID = value != ""
	case "DTSTART":
		c.hasStart = value != ""
		if value != "" && !wellFormedInstant(value) {
			c.badDates = append(c.badDates, "DTSTART "+value)
		}
	case "DTEND":
		if value != "" && !wellFormedInstant(value) {
			c.badDates = append(c.badDates, "DTEND "+value)
		}
	}
}

func (c *eventCheck) defects() []string {
	var out []string
	if !c.hasUID {
		out = append(out, fmt.Sprintf("event %d: missing UID", c.index))
	}
	if !c.hasStart {
		out = append(out, fmt.Sprintf("event %d: missing DTSTART", c.index))
	}
	for _, bad := range c.badDates {
		out = append(out, fmt.Sprintf("event %d: malformed date %s", c.index, bad))
	}
	return out
}

// unfold joins continuation lines: a line starting with a space or tab
// continues the previous logical line.
func unfold(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(out) > 0 {
			out[len(out)-1] += line[1:]
			continue
		}
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitContentLine breaks "NAME;PARAM=X:VALUE" into its parts. The colon
// split must ignore colons inside the value, so only the first one counts.
func splitContentLine(line string) (name, params, value string) {
	head, value, found := strings.Cut(line, ":")
	if !found {
		return strings.ToUpper(strings.TrimSpace(line)), "", ""
	}
	name, params, _ = strings.Cut(head, ";")
	return strings.ToUpper(strings.TrimSpace(name)), params, strings.TrimSpace(value)
}

func wellFormedInstant(v string) bool {
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102", time.RFC3339} {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
