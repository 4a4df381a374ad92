// Package export assembles a user's data for the two export targets
// the app offers: a spreadsheet-shaped payload and a JSON file backup.
// Every run is recorded as a sync job.
package export

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"notlarim/internal/model"
	"notlarim/pkg/logx"
)

type Config struct {
	BackupDir string
}

func (c Config) withDefaults() Config {
	if c.BackupDir == "" {
		c.BackupDir = "./backups"
	}
	return c
}

// Store is the slice of the document store exports read and write.
type Store interface {
	Events(ctx context.Context, userID string) ([]model.CalendarEvent, error)
	Tasks(ctx context.Context, userID string) ([]model.TaskItem, error)
	Notes(ctx context.Context, userID string) ([]model.Note, error)
	Activities(ctx context.Context, userID string) ([]model.Activity, error)
	RuleSets(ctx context.Context, userID string) ([]model.AIRuleSet, error)
	GeneratedMessages(ctx context.Context, userID string) ([]model.GeneratedMessage, error)
	CreateSyncJob(ctx context.Context, job *model.SyncJob) error
	SetLastBackupAt(ctx context.Context, userID string, at time.Time) error
}

type Service struct {
	cfg   Config
	store Store
	log   logx.Logger
}

func New(cfg Config, st Store, log logx.Logger) *Service {
	return &Service{cfg: cfg.withDefaults(), store: st, log: log}
}

// recordJob persists one export run. Meta marshal failures degrade to
// a metadata-less job record.
func (s *Service) recordJob(ctx context.Context, userID, jobType, status string, startedAt time.Time, meta any) (string, error) {
	job := &model.SyncJob{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       jobType,
		Status:     status,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			job.ResultMeta = string(b)
		}
	}
	if err := s.store.CreateSyncJob(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
