package schedule

import "fmt"

// SchedulingError rejects an invalid scheduling request. Code is stable and
// machine-readable so callers can branch programmatically.
type SchedulingError struct {
	Code    string
	Message string
}

// Scheduling error codes.
const (
	CodeNoParticipants   = "no_participants"
	CodeInvalidDuration  = "invalid_duration"
	CodeInvalidRange     = "invalid_range"
	CodeInvalidTimeRange = "invalid_time_range"
)

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling: %s: %s", e.Code, e.Message)
}

// CalendarProcessingError is a normalization/merge-stage failure that
// per-event skipping could not recover from. It carries the offending
// participant and source when known.
type CalendarProcessingError struct {
	ParticipantID string
	Source        string
	Message       string
	Err           error
}

func (e *CalendarProcessingError) Error() string {
	msg := "calendar processing"
	if e.ParticipantID != "" {
		msg += " [" + e.ParticipantID
		if e.Source != "" {
			msg += "/" + e.Source
		}
		msg += "]"
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CalendarProcessingError) Unwrap() error { return e.Err }
