package store

import (
	"context"
	"errors"
	"time"

	"notlarim/internal/model"
)

var ErrNotFound = errors.New("document not found")

// Store is the persistence API consumed by the reminder engine and the
// callable handlers. Implementations must be safe for concurrent use;
// the fleet scan runs user queries from a worker pool.
type Store interface {
	// Reads used by the reminder engine.
	ListUserIDs(ctx context.Context) ([]string, error)
	EventsFrom(ctx context.Context, userID string, from time.Time) ([]model.CalendarEvent, error)
	// DeliveryTarget returns "" (and no error) for users who never
	// registered a device token.
	DeliveryTarget(ctx context.Context, userID string) (string, error)

	// Reads/writes used by message generation.
	Event(ctx context.Context, userID, eventID string) (*model.CalendarEvent, error)
	RuleSet(ctx context.Context, userID, ruleSetID string) (*model.AIRuleSet, error)
	SaveGeneratedMessage(ctx context.Context, msg *model.GeneratedMessage) error

	// Reads/writes used by exports.
	// Events lists every calendar event, including documents without a
	// start time that EventsFrom would never return.
	Events(ctx context.Context, userID string) ([]model.CalendarEvent, error)
	Tasks(ctx context.Context, userID string) ([]model.TaskItem, error)
	Notes(ctx context.Context, userID string) ([]model.Note, error)
	Activities(ctx context.Context, userID string) ([]model.Activity, error)
	RuleSets(ctx context.Context, userID string) ([]model.AIRuleSet, error)
	GeneratedMessages(ctx context.Context, userID string) ([]model.GeneratedMessage, error)
	CreateSyncJob(ctx context.Context, job *model.SyncJob) error
	SetLastBackupAt(ctx context.Context, userID string, at time.Time) error

	// Idempotency keys for at-most-once dispatch across restarts.
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	PruneDedup(ctx context.Context) error

	Close() error
}

// Config configures the store.
//
// Driver values:
//   - "sqlite": single-file SQLite database (default)
//   - "postgres": pgx connection pool, DSN in Path
type Config struct {
	Driver      string
	Path        string        // file path (sqlite) or DSN (postgres)
	BusyTimeout time.Duration // sqlite only; 0 means default
}
