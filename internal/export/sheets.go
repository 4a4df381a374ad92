package export

import (
	"context"
	"fmt"
	"time"

	"notlarim/internal/model"
	"notlarim/pkg/logx"
)

// contentPreviewRunes caps message content in the spreadsheet payload;
// full content stays in the store and in drive backups.
const contentPreviewRunes = 200

// Sheet tab names, fixed so re-exports update the same tabs.
const (
	SheetTasksTodo  = "Tasks_Todo"
	SheetTasksDone  = "Tasks_Done"
	SheetActivities = "Activities"
	SheetEvents     = "CalendarEvents"
	SheetRuleSets   = "AIRuleSets"
	SheetMessages   = "GeneratedMessages"
)

// Row is one spreadsheet row: column title -> cell value. Column
// titles are Turkish because the sheet is user-facing.
type Row map[string]string

type SheetsResult struct {
	JobID     string
	Tabs      map[string][]Row
	TotalRows int
}

// ToSheets builds the spreadsheet payload from the user's documents
// and records the run as a sync job.
func (s *Service) ToSheets(ctx context.Context, userID string) (*SheetsResult, error) {
	startedAt := time.Now().UTC()

	tasks, err := s.store.Tasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	activities, err := s.store.Activities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	events, err := s.store.Events(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	ruleSets, err := s.store.RuleSets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load rule sets: %w", err)
	}
	messages, err := s.store.GeneratedMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	tabs := map[string][]Row{
		SheetTasksTodo:  taskTodoRows(tasks),
		SheetTasksDone:  taskDoneRows(tasks),
		SheetActivities: activityRows(activities),
		SheetEvents:     eventRows(events),
		SheetRuleSets:   ruleSetRows(ruleSets),
		SheetMessages:   messageRows(messages),
	}

	total := 0
	sheetNames := make([]string, 0, len(tabs))
	for name, rows := range tabs {
		total += len(rows)
		sheetNames = append(sheetNames, name)
	}

	jobID, err := s.recordJob(ctx, userID, model.SyncJobExportSheets, model.SyncJobCompleted, startedAt, map[string]any{
		"totalRows": total,
		"sheets":    sheetNames,
	})
	if err != nil {
		return nil, fmt.Errorf("record sync job: %w", err)
	}

	s.log.Info("sheets export built",
		logx.String("user", userID), logx.String("job", jobID), logx.Int("rows", total))
	return &SheetsResult{JobID: jobID, Tabs: tabs, TotalRows: total}, nil
}

func taskTodoRows(tasks []model.TaskItem) []Row {
	rows := make([]Row, 0, len(tasks))
	for _, t := range tasks {
		if t.IsCompleted {
			continue
		}
		created := t.CreatedAt
		rows = append(rows, Row{
			"ID":                t.ID,
			"Başlık":            t.Title,
			"Açıklama":          t.Description,
			"Hatırlatma Tarihi": fmtTime(t.ReminderAt),
			"Oluşturulma":       fmtTime(&created),
		})
	}
	return rows
}

func taskDoneRows(tasks []model.TaskItem) []Row {
	rows := make([]Row, 0, len(tasks))
	for _, t := range tasks {
		if !t.IsCompleted {
			continue
		}
		rows = append(rows, Row{
			"ID":         t.ID,
			"Başlık":     t.Title,
			"Tamamlanma": fmtTime(t.CompletedAt),
		})
	}
	return rows
}

func activityRows(activities []model.Activity) []Row {
	rows := make([]Row, 0, len(activities))
	for _, a := range activities {
		rows = append(rows, Row{
			"ID":         a.ID,
			"Başlık":     a.Title,
			"Açıklama":   a.Description,
			"Tarih/Saat": fmtTime(a.ActivityAt),
			"Kategori":   a.CategoryID,
		})
	}
	return rows
}

func eventRows(events []model.CalendarEvent) []Row {
	rows := make([]Row, 0, len(events))
	for _, ev := range events {
		rows = append(rows, Row{
			"ID":        ev.ID,
			"Başlık":    ev.Title,
			"Başlangıç": fmtTime(ev.StartAt),
			"Bitiş":     fmtTime(ev.EndAt),
		})
	}
	return rows
}

func ruleSetRows(ruleSets []model.AIRuleSet) []Row {
	rows := make([]Row, 0, len(ruleSets))
	for _, rs := range ruleSets {
		rows = append(rows, Row{
			"ID":       rs.ID,
			"Ad":       rs.Name,
			"Kategori": rs.Category,
			"Üslup":    rs.Tone,
			"Emoji":    rs.EmojiPolicy,
		})
	}
	return rows
}

func messageRows(messages []model.GeneratedMessage) []Row {
	rows := make([]Row, 0, len(messages))
	for _, m := range messages {
		created := m.CreatedAt
		rows = append(rows, Row{
			"ID":          m.ID,
			"Başlık":      m.Title,
			"İçerik":      truncateRunes(m.Content, contentPreviewRunes),
			"Oluşturulma": fmtTime(&created),
		})
	}
	return rows
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
