// Package google adapts the Google Calendar API to the provider.Source
// capability interface.
package google

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	appLog "meetsched/internal/log"
	"meetsched/internal/model"
)

const providerName = "google"

// Adapter fetches events from a Google Calendar account.
type Adapter struct {
	// CalendarID defaults to "primary".
	CalendarID string
}

func New() *Adapter {
	return &Adapter{CalendarID: "primary"}
}

func (a *Adapter) Name() string { return providerName }

// Fetch lists the account's events inside the window, with recurring events
// already expanded to single instances by the API. Events the engine cannot
// use (no timed start or end) are skipped with a warning.
func (a *Adapter) Fetch(ctx context.Context, token string, window model.SearchRange) ([]model.Event, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("google: create service: %w", err)
	}

	calID := a.CalendarID
	if calID == "" {
		calID = "primary"
	}

	call := svc.Events.List(calID).
		TimeMin(window.Start.Format(time.RFC3339)).
		TimeMax(window.End.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(true).
		OrderBy("startTime").
		MaxResults(2500)

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google: list events: %w", err)
	}

	events := make([]model.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev, ok := convertItem(item)
		if !ok {
			appLog.Warn("skipping google event without usable times", "event_id", item.Id)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("google fetch completed", "calendar", calID, "event_count", len(events))
	return events, nil
}

func convertItem(item *calendar.Event) (model.Event, bool) {
	start, zone, ok := convertTime(item.Start)
	if !ok {
		return model.Event{}, false
	}
	end, _, ok := convertTime(item.End)
	if !ok {
		return model.Event{}, false
	}

	return model.Event{
		ID:       item.Id,
		Title:    item.Summary,
		Start:    start,
		End:      end,
		Timezone: zone,
		Status:   convertStatus(item.Status),
	}, true
}

func convertTime(edt *calendar.EventDateTime) (time.Time, string, bool) {
	if edt == nil {
		return time.Time{}, "", false
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, "", false
		}
		zone := edt.TimeZone
		if zone == "" {
			zone = "UTC"
		}
		return t, zone, true
	}
	if edt.Date != "" {
		// All-day: midnight in the event's zone, or UTC when unstated.
		loc := time.UTC
		if edt.TimeZone != "" {
			if l, err := time.LoadLocation(edt.TimeZone); err == nil {
				loc = l
			}
		}
		t, err := time.ParseInLocation("2006-01-02", edt.Date, loc)
		if err != nil {
			return time.Time{}, "", false
		}
		zone := edt.TimeZone
		if zone == "" {
			zone = "UTC"
		}
		return t, zone, true
	}
	return time.Time{}, "", false
}

func convertStatus(status string) model.EventStatus {
	switch status {
	case "cancelled":
		return model.StatusCancelled
	case "tentative":
		return model.StatusTentative
	default:
		return model.StatusConfirmed
	}
}
