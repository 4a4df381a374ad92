package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"notlarim/internal/model"
	"notlarim/pkg/logx"
)

type fakeStore struct {
	events     []model.CalendarEvent
	tasks      []model.TaskItem
	notes      []model.Note
	activities []model.Activity
	ruleSets   []model.AIRuleSet
	messages   []model.GeneratedMessage

	jobs         []*model.SyncJob
	lastBackupAt *time.Time
}

func (f *fakeStore) Events(context.Context, string) ([]model.CalendarEvent, error) {
	return f.events, nil
}
func (f *fakeStore) Tasks(context.Context, string) ([]model.TaskItem, error) { return f.tasks, nil }
func (f *fakeStore) Notes(context.Context, string) ([]model.Note, error)     { return f.notes, nil }
func (f *fakeStore) Activities(context.Context, string) ([]model.Activity, error) {
	return f.activities, nil
}
func (f *fakeStore) RuleSets(context.Context, string) ([]model.AIRuleSet, error) {
	return f.ruleSets, nil
}
func (f *fakeStore) GeneratedMessages(context.Context, string) ([]model.GeneratedMessage, error) {
	return f.messages, nil
}
func (f *fakeStore) CreateSyncJob(_ context.Context, job *model.SyncJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}
func (f *fakeStore) SetLastBackupAt(_ context.Context, _ string, at time.Time) error {
	f.lastBackupAt = &at
	return nil
}

func tp(t time.Time) *time.Time { return &t }

func TestToSheets(t *testing.T) {
	t.Parallel()

	done := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	st := &fakeStore{
		tasks: []model.TaskItem{
			{ID: "t1", Title: "Alışveriş", CreatedAt: done},
			{ID: "t2", Title: "Fatura öde", IsCompleted: true, CompletedAt: tp(done)},
		},
		events: []model.CalendarEvent{
			{ID: "ev1", Title: "Toplantı", StartAt: tp(done)},
		},
		ruleSets: []model.AIRuleSet{
			{ID: "rs1", Name: "İş", Tone: "resmi"},
		},
		messages: []model.GeneratedMessage{
			{ID: "m1", Title: "Mesaj", Content: strings.Repeat("a", 300), CreatedAt: done},
		},
	}

	res, err := New(Config{}, st, logx.Nop()).ToSheets(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ToSheets: %v", err)
	}

	if got := len(res.Tabs); got != 6 {
		t.Fatalf("tabs = %d, want 6", got)
	}
	if got := len(res.Tabs[SheetTasksTodo]); got != 1 {
		t.Fatalf("todo rows = %d, want 1", got)
	}
	if got := len(res.Tabs[SheetTasksDone]); got != 1 {
		t.Fatalf("done rows = %d, want 1", got)
	}
	if got := res.Tabs[SheetTasksDone][0]["Tamamlanma"]; got != "2026-04-01T09:00:00Z" {
		t.Fatalf("done timestamp = %q", got)
	}
	if got := res.Tabs[SheetMessages][0]["İçerik"]; len([]rune(got)) != contentPreviewRunes {
		t.Fatalf("content preview = %d runes, want %d", len([]rune(got)), contentPreviewRunes)
	}
	if res.TotalRows != 5 {
		t.Fatalf("total rows = %d, want 5", res.TotalRows)
	}

	if len(st.jobs) != 1 {
		t.Fatalf("jobs recorded = %d, want 1", len(st.jobs))
	}
	job := st.jobs[0]
	if job.Type != model.SyncJobExportSheets || job.Status != model.SyncJobCompleted {
		t.Fatalf("job = %+v", job)
	}
	if res.JobID != job.ID {
		t.Fatalf("job id mismatch: %q vs %q", res.JobID, job.ID)
	}
	var meta struct {
		TotalRows int      `json:"totalRows"`
		Sheets    []string `json:"sheets"`
	}
	if err := json.Unmarshal([]byte(job.ResultMeta), &meta); err != nil {
		t.Fatalf("result meta: %v", err)
	}
	if meta.TotalRows != 5 || len(meta.Sheets) != 6 {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestToDrive(t *testing.T) {
	t.Parallel()

	st := &fakeStore{
		tasks: []model.TaskItem{{ID: "t1", Title: "Alışveriş"}},
		notes: []model.Note{{ID: "n1", Title: "Fikirler", Content: "bir şeyler"}},
	}
	dir := t.TempDir()

	res, err := New(Config{BackupDir: dir}, st, logx.Nop()).ToDrive(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ToDrive: %v", err)
	}

	if len(res.Files) != 5 {
		t.Fatalf("files = %v, want 5 names", res.Files)
	}
	if res.TotalDocuments != 2 {
		t.Fatalf("total documents = %d, want 2", res.TotalDocuments)
	}
	if !strings.HasPrefix(res.Dir, filepath.Join(dir, "u1")) {
		t.Fatalf("backup dir = %q, want under %q", res.Dir, filepath.Join(dir, "u1"))
	}

	b, err := os.ReadFile(filepath.Join(res.Dir, FileNotes))
	if err != nil {
		t.Fatalf("read notes backup: %v", err)
	}
	var notes []model.Note
	if err := json.Unmarshal(b, &notes); err != nil {
		t.Fatalf("notes backup json: %v", err)
	}
	if len(notes) != 1 || notes[0].Title != "Fikirler" {
		t.Fatalf("notes backup = %+v", notes)
	}

	// Empty collections serialize as [], not null.
	b, err = os.ReadFile(filepath.Join(res.Dir, FileMessages))
	if err != nil {
		t.Fatalf("read messages backup: %v", err)
	}
	if strings.TrimSpace(string(b)) != "[]" {
		t.Fatalf("empty collection = %q, want []", string(b))
	}

	if st.lastBackupAt == nil {
		t.Fatal("lastBackupAt not stamped")
	}
	if len(st.jobs) != 1 || st.jobs[0].Type != model.SyncJobExportDrive {
		t.Fatalf("jobs = %+v", st.jobs)
	}
}
