package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"notlarim/internal/model"
	"notlarim/pkg/logx"
)

// Backup file names, one JSON document per collection.
const (
	FileTasks      = "tasks.json"
	FileActivities = "activities.json"
	FileNotes      = "notes.json"
	FileRuleSets   = "ai_rules.json"
	FileMessages   = "generated_messages.json"
)

type DriveResult struct {
	JobID          string
	Dir            string
	Files          []string
	TotalDocuments int
}

// ToDrive writes the user's collections as JSON files under a
// timestamped per-user backup directory, records the run and stamps
// the user's lastBackupAt.
func (s *Service) ToDrive(ctx context.Context, userID string) (*DriveResult, error) {
	startedAt := time.Now().UTC()

	tasks, err := s.store.Tasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	activities, err := s.store.Activities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	notes, err := s.store.Notes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	ruleSets, err := s.store.RuleSets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load rule sets: %w", err)
	}
	messages, err := s.store.GeneratedMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	files := map[string]any{
		FileTasks:      emptySlice(tasks),
		FileActivities: emptySlice(activities),
		FileNotes:      emptySlice(notes),
		FileRuleSets:   emptySlice(ruleSets),
		FileMessages:   emptySlice(messages),
	}
	total := len(tasks) + len(activities) + len(notes) + len(ruleSets) + len(messages)

	dir := filepath.Join(s.cfg.BackupDir, userID, startedAt.Format("20060102T150405Z"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	written := make([]string, 0, len(files))
	for name, docs := range files {
		b, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, name)
	}

	jobID, err := s.recordJob(ctx, userID, model.SyncJobExportDrive, model.SyncJobCompleted, startedAt, map[string]any{
		"files":          written,
		"totalDocuments": total,
	})
	if err != nil {
		return nil, fmt.Errorf("record sync job: %w", err)
	}

	if err := s.store.SetLastBackupAt(ctx, userID, startedAt); err != nil {
		return nil, fmt.Errorf("stamp last backup: %w", err)
	}

	s.log.Info("drive backup written",
		logx.String("user", userID), logx.String("job", jobID),
		logx.String("dir", dir), logx.Int("documents", total))
	return &DriveResult{JobID: jobID, Dir: dir, Files: written, TotalDocuments: total}, nil
}

// emptySlice keeps empty collections as [] instead of null in the
// backup files.
func emptySlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
