// Package ical turns calendar interchange text into ParticipantCalendar
// records. Parsing is best-effort per event: a defective VEVENT is skipped
// with a warning, and only a missing VCALENDAR container fails the call.
package ical

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "meetsched/internal/log"
	"meetsched/internal/model"
	"meetsched/internal/recur"
	"meetsched/internal/tz"
)

const defaultEventDuration = 60 * time.Minute

// Parse parses interchange-format text into one participant's calendar.
// The participant id is a slug of label, or a short random token when label
// is empty.
func Parse(text, label string) (*model.ParticipantCalendar, error) {
	if !strings.Contains(text, "BEGIN:VCALENDAR") || !strings.Contains(text, "END:VCALENDAR") {
		return nil, &ParseError{Reason: "missing VCALENDAR container markers"}
	}

	cal, err := ics.ParseCalendar(strings.NewReader(text))
	if err != nil {
		return nil, &ParseError{Reason: "unparseable calendar body", Err: err}
	}

	id, name := participantIdentity(label)
	out := &model.ParticipantCalendar{
		ParticipantID: id,
		Name:          name,
		Timezone:      tz.ReferenceZone,
		Source:        "ical",
	}

	for _, ve := range cal.Events() {
		event, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Warn("skipping unparseable event", "participant", id, "reason", perr.Error())
			continue
		}
		out.Events = append(out.Events, event)
	}

	appLog.Info("ical parse completed", "participant", id, "event_count", len(out.Events))
	return out, nil
}

func parseVEvent(ve *ics.VEvent) (model.Event, error) {
	var event model.Event

	uid := ve.GetProperty(ics.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return event, fmt.Errorf("missing UID")
	}
	event.ID = uid.Value

	if p := ve.GetProperty(ics.ComponentPropertySummary); p != nil {
		event.Title = p.Value
	}

	startProp := ve.GetProperty(ics.ComponentPropertyDtStart)
	if startProp == nil || startProp.Value == "" {
		return event, fmt.Errorf("missing DTSTART")
	}
	start, startZone, err := parseInstant(startProp)
	if err != nil {
		return event, fmt.Errorf("bad DTSTART %q: %w", startProp.Value, err)
	}
	event.Start = start
	event.Timezone = startZone

	// End: explicit DTEND, else DTSTART + DURATION, else 60 minutes.
	switch {
	case ve.GetProperty(ics.ComponentPropertyDtEnd) != nil:
		endProp := ve.GetProperty(ics.ComponentPropertyDtEnd)
		end, _, err := parseInstant(endProp)
		if err != nil {
			return event, fmt.Errorf("bad DTEND %q: %w", endProp.Value, err)
		}
		event.End = end
	case ve.GetProperty(ics.ComponentProperty("DURATION")) != nil:
		d, err := parseISODuration(ve.GetProperty(ics.ComponentProperty("DURATION")).Value)
		if err != nil {
			return event, fmt.Errorf("bad DURATION: %w", err)
		}
		event.End = start.Add(d)
	default:
		event.End = start.Add(defaultEventDuration)
	}

	// Raw property name; the library's constant set varies across versions.
	event.Status = parseStatus(ve.GetProperty(ics.ComponentProperty("STATUS")))

	// A recurrence rule that fails to parse is dropped, keeping the event as
	// a single occurrence. That is a recoverable condition, not a failure.
	if p := ve.GetProperty(ics.ComponentPropertyRrule); p != nil && p.Value != "" {
		rule, rerr := recur.ParseRule(p.Value)
		if rerr != nil {
			appLog.Warn("dropping unparseable recurrence rule",
				"event_id", event.ID, "rrule", p.Value, "reason", rerr.Error())
		} else {
			event.Recurrence = rule
			event.Exclusions = parseExclusions(ve, event.ID)
		}
	}

	return event, nil
}

// parseExclusions collects every EXDATE instant on the event. The property
// may repeat and each occurrence may carry multiple comma-separated values;
// a malformed value drops that value only.
func parseExclusions(ve *ics.VEvent, eventID string) []time.Time {
	var out []time.Time
	for _, prop := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, value := range strings.Split(prop.Value, ",") {
			t, _, err := parseInstantValue(value, prop.ICalParameters)
			if err != nil {
				appLog.Warn("dropping malformed exclusion date",
					"event_id", eventID, "value", value, "reason", err.Error())
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

// parseInstant decodes a date-time property into an absolute instant. A
// trailing Z reinterprets the wall clock as UTC; otherwise a TZID parameter
// names the zone the wall clock belongs to. Each property is anchored
// independently here, so a mixed-frame event (zoned start, UTC end) stays
// correct downstream where only presentation changes.
func parseInstant(prop *ics.IANAProperty) (time.Time, string, error) {
	return parseInstantValue(prop.Value, prop.ICalParameters)
}

func parseInstantValue(value string, params map[string][]string) (time.Time, string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, "", fmt.Errorf("empty value")
	}

	zone := tz.ReferenceZone
	if tzids, ok := params["TZID"]; ok && len(tzids) > 0 && tzids[0] != "" {
		if tz.IsValidZone(tzids[0]) {
			zone = tzids[0]
		} else {
			appLog.Warn("unknown TZID, treating as UTC", "tzid", tzids[0])
		}
	}

	// Compact UTC form: the Z wins over any TZID parameter.
	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		if err != nil {
			return time.Time{}, "", err
		}
		return t, tz.ReferenceZone, nil
	}

	if t, err := time.Parse("20060102T150405", value); err == nil {
		return tz.ToUTC(t, zone), zone, nil
	}
	if t, err := time.Parse("20060102", value); err == nil {
		return tz.ToUTC(t, zone), zone, nil
	}

	// Fallback standard timestamp form.
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, "", err
	}
	return t, zone, nil
}

func parseStatus(prop *ics.IANAProperty) model.EventStatus {
	if prop == nil {
		return model.StatusConfirmed
	}
	switch strings.ToUpper(strings.TrimSpace(prop.Value)) {
	case "CANCELLED":
		return model.StatusCancelled
	case "TENTATIVE":
		return model.StatusTentative
	default:
		return model.StatusConfirmed
	}
}

var isoDurationPattern = regexp.MustCompile(`^(-)?P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseISODuration handles the ISO-8601 duration subset iCalendar uses
// (PT2H30M, P1D, PT45M, ...).
func parseISODuration(v string) (time.Duration, error) {
	m := isoDurationPattern.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return 0, fmt.Errorf("malformed duration %q", v)
	}

	var d time.Duration
	add := func(s string, unit time.Duration) {
		if s == "" {
			return
		}
		n, _ := strconv.Atoi(s)
		d += time.Duration(n) * unit
	}
	add(m[2], 7*24*time.Hour)
	add(m[3], 24*time.Hour)
	add(m[4], time.Hour)
	add(m[5], time.Minute)
	add(m[6], time.Second)

	if d == 0 {
		return 0, fmt.Errorf("zero duration %q", v)
	}
	if m[1] == "-" {
		d = -d
	}
	return d, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// participantIdentity derives the participant id and display name from the
// supplied label, falling back to a short random token.
func participantIdentity(label string) (id, name string) {
	label = strings.TrimSpace(label)
	if label == "" {
		token := uuid.NewString()[:8]
		return "participant-" + token, "Participant " + token
	}
	slug := slugPattern.ReplaceAllString(strings.ToLower(label), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "participant-" + uuid.NewString()[:8]
	}
	return slug, label
}
