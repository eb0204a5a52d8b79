package calendar

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// RecurrenceRule is the decoded form of Event.Recurrence: either an
// RRULE string (per spec §4.2, detected by a FREQ=/RRULE: prefix) or a
// JSON object fallback for sources that don't speak RRULE natively.
type RecurrenceRule struct {
	RRule   *rrule.RRule
	DTStart time.Time
	Raw     map[string]interface{} // populated only for the JSON fallback form
}

// ParseRecurrence decodes e.Recurrence. An empty string yields a nil
// result and no error (the event does not recur).
func ParseRecurrence(e *Event) (*RecurrenceRule, error) {
	raw := strings.TrimSpace(e.Recurrence)
	if raw == "" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "RRULE:") || strings.HasPrefix(raw, "FREQ=") {
		spec := strings.TrimPrefix(raw, "RRULE:")
		ro, err := rrule.StrToROption(spec)
		if err != nil {
			return nil, fmt.Errorf("calendar: invalid RRULE %q: %w", raw, err)
		}
		ro.Dtstart = e.StartAt
		r, err := rrule.NewRRule(*ro)
		if err != nil {
			return nil, fmt.Errorf("calendar: invalid RRULE %q: %w", raw, err)
		}
		return &RecurrenceRule{RRule: r, DTStart: e.StartAt}, nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("calendar: recurrence is neither RRULE nor valid JSON: %w", err)
	}
	return &RecurrenceRule{Raw: obj}, nil
}

// NextOccurrences returns up to limit occurrence start times on or after
// after. Events without an RRULE-form recurrence return nil.
func (r *RecurrenceRule) NextOccurrences(after time.Time, limit int) []time.Time {
	if r == nil || r.RRule == nil {
		return nil
	}
	horizon := r.DTStart.AddDate(10, 0, 0)
	all := r.RRule.Between(after, horizon, true)
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}
