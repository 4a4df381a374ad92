package remind

import (
	"time"

	"notlarim/internal/model"
)

// Fired is one (rule, fire time) pair that landed inside the scan
// window. RuleIndex is the rule's position in the event's list; it is
// part of the dispatch idempotency key.
type Fired struct {
	Rule      Rule
	RuleIndex int
	At        time.Time
}

// Resolve expands one event's rule list into the pairs due in the
// window. Events without a start time are not-yet-ready data and
// produce nothing; so do events with an empty rule list. Rules that
// fail validation are skipped individually.
func Resolve(ev model.CalendarEvent, win Window) []Fired {
	if ev.StartAt == nil || len(ev.ReminderRules) == 0 {
		return nil
	}

	var fired []Fired
	for i, raw := range ev.ReminderRules {
		rule, err := ParseRule(raw)
		if err != nil {
			continue
		}
		at := FireTime(*ev.StartAt, rule)
		if !win.Contains(at) {
			continue
		}
		fired = append(fired, Fired{Rule: rule, RuleIndex: i, At: at})
	}
	return fired
}
