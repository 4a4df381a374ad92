// Package model holds the document shapes shared by the store, the
// reminder engine and the export/message handlers. The layout mirrors
// the mobile app's per-user document tree (calendarEvents, tasks,
// notes, activities, aiRuleSets, generatedMessages, syncJobs).
package model

import "time"

// User is the root document of a user's tree. The backend only ever
// reads it; accounts are created by the app at signup.
type User struct {
	ID           string     `json:"id"`
	PushToken    string     `json:"pushToken,omitempty"` // delivery target; empty = never registered
	LastBackupAt *time.Time `json:"lastBackupAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ReminderRule is kept in its loose wire shape. The app writes these
// as free-form JSON, so Unit/Kind are validated in the remind package,
// not here.
type ReminderRule struct {
	Kind  string `json:"type"` // currently only "offset_before_start"
	Value int64  `json:"value"`
	Unit  string `json:"unit"` // minute | hour | day
}

// CalendarEvent belongs to exactly one user. StartAt is nil for
// not-yet-ready documents; the reminder engine skips those.
type CalendarEvent struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	StartAt       *time.Time     `json:"startAt,omitempty"`
	EndAt         *time.Time     `json:"endAt,omitempty"`
	ReminderRules []ReminderRule `json:"reminderRules,omitempty"`
}

type TaskItem struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ReminderAt  *time.Time `json:"reminderAt,omitempty"`
	IsCompleted bool       `json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Activity struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ActivityAt  *time.Time `json:"activityAt,omitempty"`
	CategoryID  string     `json:"categoryId,omitempty"`
}

// AIRuleSet drives message generation: tone, greeting style, phrases
// that must appear and words that must not.
type AIRuleSet struct {
	ID                 string   `json:"id"`
	UserID             string   `json:"userId"`
	Name               string   `json:"name"`
	Category           string   `json:"category,omitempty"`
	Tone               string   `json:"tone,omitempty"`
	EmojiPolicy        string   `json:"emojiPolicy,omitempty"`
	GreetingStyle      string   `json:"greetingStyle,omitempty"`
	LengthTarget       string   `json:"lengthTarget,omitempty"` // kısa | orta | uzun
	FixedPhrases       []string `json:"fixedPhrases,omitempty"`
	BannedWords        []string `json:"bannedWords,omitempty"`
	CustomInstructions string   `json:"customInstructions,omitempty"`
}

type GeneratedMessage struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	SourceEventID string    `json:"sourceEventId,omitempty"`
	RuleSetID     string    `json:"ruleSetId,omitempty"`
	IsFavorite    bool      `json:"isFavorite"`
	IsArchived    bool      `json:"isArchived"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SyncJob records one export run (sheets or drive backup).
type SyncJob struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Type       string    `json:"type"`   // export_sheets | export_drive
	Status     string    `json:"status"` // completed | failed
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	ResultMeta string    `json:"resultMeta,omitempty"` // JSON blob
}

const (
	SyncJobExportSheets = "export_sheets"
	SyncJobExportDrive  = "export_drive"

	SyncJobCompleted = "completed"
	SyncJobFailed    = "failed"
)
