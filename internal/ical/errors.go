package ical

import (
	"fmt"
	"strings"
)

// ParseError means the input text lacks the mandatory container structure.
// It is fatal to the parse call that raised it.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ical parse: %s: %v", e.Reason, e.Err)
	}
	return "ical parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError carries every structural defect found by the pre-check so
// callers can report all problems at once instead of one per round trip.
type ValidationError struct {
	Defects []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ical validation: %d defect(s): %s",
		len(e.Defects), strings.Join(e.Defects, "; "))
}
