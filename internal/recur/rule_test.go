package recur

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"meetsched/internal/model"
)

func TestParseRule(t *testing.T) {
	t.Parallel()

	until := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name    string
		value   string
		want    *model.RecurrenceRule
		wantErr bool
	}{
		{
			name:  "weekly with count",
			value: "FREQ=WEEKLY;COUNT=4",
			want:  &model.RecurrenceRule{Frequency: model.FreqWeekly, Interval: 1, Count: 4},
		},
		{
			name:  "daily with interval and until",
			value: "FREQ=DAILY;INTERVAL=2;UNTIL=20240630T235959Z",
			want:  &model.RecurrenceRule{Frequency: model.FreqDaily, Interval: 2, Until: &until},
		},
		{
			name:  "by-filters",
			value: "FREQ=MONTHLY;BYDAY=MO,WE;BYMONTHDAY=1,15;BYMONTH=1,6",
			want: &model.RecurrenceRule{
				Frequency:  model.FreqMonthly,
				Interval:   1,
				ByWeekday:  []time.Weekday{time.Monday, time.Wednesday},
				ByMonthDay: []int{1, 15},
				ByMonth:    []time.Month{time.January, time.June},
			},
		},
		{
			name:  "ordinal weekday prefix stripped",
			value: "FREQ=MONTHLY;BYDAY=-1SU",
			want: &model.RecurrenceRule{
				Frequency: model.FreqMonthly,
				Interval:  1,
				ByWeekday: []time.Weekday{time.Sunday},
			},
		},
		{
			name:  "rrule prefix tolerated",
			value: "RRULE:FREQ=DAILY",
			want:  &model.RecurrenceRule{Frequency: model.FreqDaily, Interval: 1},
		},
		{name: "missing freq", value: "COUNT=4", wantErr: true},
		{name: "unknown freq", value: "FREQ=FORTNIGHTLY", wantErr: true},
		{name: "bad interval", value: "FREQ=DAILY;INTERVAL=0", wantErr: true},
		{name: "empty", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseRule(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRule(%q) = %+v, want error", tt.value, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRule(%q) error = %v", tt.value, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseRule(%q) mismatch (-want +got):\n%s", tt.value, diff)
			}
		})
	}
}

func TestValidateRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		rule         *model.RecurrenceRule
		wantContains []string
	}{
		{
			name: "secondly is invalid",
			rule: &model.RecurrenceRule{Frequency: model.FreqSecondly, Count: 10},
			wantContains: []string{
				"second-level recurrence frequency is invalid",
			},
		},
		{
			name: "fine-grained minutely",
			rule: &model.RecurrenceRule{Frequency: model.FreqMinutely, Interval: 5, Count: 10},
			wantContains: []string{
				"granularity below 15 minutes",
			},
		},
		{
			name: "unbounded daily projects too many",
			rule: &model.RecurrenceRule{Frequency: model.FreqDaily, Interval: 1},
			wantContains: []string{
				"occurrences over 5 years",
			},
		},
		{
			name: "bounded daily is fine",
			rule: &model.RecurrenceRule{Frequency: model.FreqDaily, Interval: 1, Count: 10},
		},
		{
			name: "unbounded yearly is fine",
			rule: &model.RecurrenceRule{Frequency: model.FreqYearly, Interval: 1},
		},
		{name: "nil rule", rule: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ValidateRule(tt.rule)
			if len(tt.wantContains) == 0 {
				if len(got) != 0 {
					t.Errorf("ValidateRule() = %v, want no warnings", got)
				}
				return
			}
			for _, want := range tt.wantContains {
				found := false
				for _, w := range got {
					if strings.Contains(w, want) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("ValidateRule() = %v, missing warning containing %q", got, want)
				}
			}
		})
	}
}
