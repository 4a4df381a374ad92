package remind

import (
	"context"
	"time"

	"notlarim/internal/model"
)

// Config controls the reminder engine.
type Config struct {
	// Horizon is the scan window length. It should match the trigger
	// cadence so consecutive windows are contiguous (default 5m).
	Horizon time.Duration
	// Workers bounds concurrent per-user scans (default 4).
	Workers int
	// RatePerSec limits push sends across all workers (0 = unlimited).
	RatePerSec int
	// Dedup enables persisted idempotency keys so a restarted or
	// double-triggered tick never re-dispatches within a window.
	Dedup bool
}

func (c Config) withDefaults() Config {
	if c.Horizon <= 0 {
		c.Horizon = 5 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// UserSource is the read side of the document store the engine
// depends on.
type UserSource interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	EventsFrom(ctx context.Context, userID string, from time.Time) ([]model.CalendarEvent, error)
	DeliveryTarget(ctx context.Context, userID string) (string, error)
}

// DedupStore persists dispatch idempotency keys.
type DedupStore interface {
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	PutDedup(ctx context.Context, key string, until time.Time) error
}

// Due is one notification owed to a user in the current window.
type Due struct {
	UserID     string
	EventID    string
	EventTitle string
	Rule       Rule
	RuleIndex  int
	FireAt     time.Time
}

// Outcome classifies one dispatch attempt.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeNoTarget
	OutcomeDeduped
	OutcomeFailed
)

// TickStats aggregates one fleet scan.
type TickStats struct {
	Window         Window
	Users          int
	ScanErrors     int
	Fired          int
	Sent           int
	NoTarget       int
	Deduped        int
	DispatchErrors int
	Took           time.Duration
}
