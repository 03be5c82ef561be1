// Package tz converts event instants between named zones and the UTC
// reference frame, and formats instants for display in arbitrary zones.
package tz

import (
	"time"

	appLog "meetsched/internal/log"
)

// ReferenceZone is the single baseline all events are normalized to before
// cross-participant comparison.
const ReferenceZone = "UTC"

// aliases maps common non-IANA zone labels (Windows display names and a few
// colloquial abbreviations) to IANA equivalents. Checked before validation;
// anything still unresolved falls back to the reference frame.
var aliases = map[string]string{
	"Pacific Standard Time":        "America/Los_Angeles",
	"Mountain Standard Time":       "America/Denver",
	"Central Standard Time":        "America/Chicago",
	"Eastern Standard Time":        "America/New_York",
	"Atlantic Standard Time":       "America/Halifax",
	"Alaskan Standard Time":        "America/Anchorage",
	"Hawaiian Standard Time":       "Pacific/Honolulu",
	"GMT Standard Time":            "Europe/London",
	"Central Europe Standard Time": "Europe/Paris",
	"China Standard Time":          "Asia/Shanghai",
	"Tokyo Standard Time":          "Asia/Tokyo",
	"India Standard Time":          "Asia/Kolkata",
	"AUS Eastern Standard Time":    "Australia/Sydney",
	"GMT":                          "Etc/GMT",
	"EST":                          "America/New_York",
	"CST":                          "America/Chicago",
	"MST":                          "America/Denver",
	"PST":                          "America/Los_Angeles",
}

// Resolve maps a zone name through the alias table and loads its Location.
// Empty names and unknown names resolve to UTC; the second return reports
// whether the name was actually recognized.
func Resolve(name string) (*time.Location, bool) {
	if name == "" || name == ReferenceZone {
		return time.UTC, true
	}
	if iana, ok := aliases[name]; ok {
		name = iana
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// IsValidZone reports whether the name resolves (directly or via alias) to a
// loadable zone.
func IsValidZone(name string) bool {
	_, ok := Resolve(name)
	return ok
}

// ToUTC normalizes an instant whose wall-clock fields are expressed in the
// named zone into the UTC reference frame. The zone offset is taken at the
// given instant, so DST transitions are honored for any date. An
// unresolvable zone returns the instant unchanged with a logged warning.
func ToUTC(t time.Time, zone string) time.Time {
	loc, ok := Resolve(zone)
	if !ok {
		appLog.Warn("unknown timezone, leaving instant unchanged", "zone", zone)
		return t
	}
	return rebase(t, loc).In(time.UTC)
}

// FromUTC presents a UTC instant in the named zone. The instant itself is
// preserved; only the wall clock changes. An unresolvable zone returns the
// instant unchanged with a logged warning.
func FromUTC(t time.Time, zone string) time.Time {
	loc, ok := Resolve(zone)
	if !ok {
		appLog.Warn("unknown timezone, leaving instant unchanged", "zone", zone)
		return t
	}
	return t.In(loc)
}

// Format renders an instant in the named zone using the given layout.
// Unresolvable zones fall back to the reference frame rather than failing.
func Format(t time.Time, zone, layout string) string {
	loc, ok := Resolve(zone)
	if !ok {
		appLog.Warn("unknown timezone, formatting in UTC", "zone", zone)
		loc = time.UTC
	}
	return t.In(loc).Format(layout)
}

// rebase keeps t's wall-clock fields but re-anchors them in loc. If t is
// already expressed in loc this is a no-op on the instant, which is what
// makes normalization idempotent.
func rebase(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
