package remind

import (
	"errors"
	"time"

	"notlarim/internal/model"
)

// Unit is the validated offset unit of a reminder rule.
type Unit int

const (
	UnitMinute Unit = iota
	UnitHour
	UnitDay
)

const (
	minuteMillis = 60_000
	hourMillis   = 3_600_000
	dayMillis    = 86_400_000
)

// KindOffsetBeforeStart is the only rule kind the app writes today.
const KindOffsetBeforeStart = "offset_before_start"

var (
	ErrUnknownUnit  = errors.New("unknown reminder unit")
	ErrUnknownKind  = errors.New("unknown reminder rule kind")
	ErrNegativeRule = errors.New("reminder value must be >= 0")
)

// ParseUnit maps the wire unit string onto a Unit.
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "minute":
		return UnitMinute, nil
	case "hour":
		return UnitHour, nil
	case "day":
		return UnitDay, nil
	default:
		return 0, ErrUnknownUnit
	}
}

// Millis returns the unit length in milliseconds.
func (u Unit) Millis() int64 {
	switch u {
	case UnitHour:
		return hourMillis
	case UnitDay:
		return dayMillis
	default:
		return minuteMillis
	}
}

// Turkish returns the unit name used in notification bodies.
func (u Unit) Turkish() string {
	switch u {
	case UnitHour:
		return "saat"
	case UnitDay:
		return "gün"
	default:
		return "dakika"
	}
}

// Rule is the validated form of a reminder rule. Documents carry the
// loose model.ReminderRule shape; everything that reaches the
// evaluator has passed ParseRule.
type Rule struct {
	Value int64
	Unit  Unit
}

// ParseRule validates a wire-shaped rule. Invalid shapes (unknown
// unit or kind, negative value) are rejected so they can be skipped
// explicitly instead of silently firing at event start.
func ParseRule(raw model.ReminderRule) (Rule, error) {
	if raw.Kind != "" && raw.Kind != KindOffsetBeforeStart {
		return Rule{}, ErrUnknownKind
	}
	if raw.Value < 0 {
		return Rule{}, ErrNegativeRule
	}
	unit, err := ParseUnit(raw.Unit)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Value: raw.Value, Unit: unit}, nil
}

// FireTime computes the absolute instant the rule is due:
// event start minus the rule offset.
func FireTime(startAt time.Time, r Rule) time.Time {
	offset := time.Duration(r.Value*r.Unit.Millis()) * time.Millisecond
	return startAt.Add(-offset)
}
