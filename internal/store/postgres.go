package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notlarim/internal/model"
	"notlarim/pkg/logx"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS users (
    id             TEXT PRIMARY KEY,
    push_token     TEXT,
    last_backup_at TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS calendar_events (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    title          TEXT NOT NULL DEFAULT '',
    description    TEXT,
    start_at       TIMESTAMPTZ,
    end_at         TIMESTAMPTZ,
    reminder_rules JSONB
);
CREATE INDEX IF NOT EXISTS idx_events_user_start ON calendar_events(user_id, start_at);
CREATE TABLE IF NOT EXISTS tasks (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    description  TEXT,
    reminder_at  TIMESTAMPTZ,
    is_completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS notes (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    content    TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS activities (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    description TEXT,
    activity_at TIMESTAMPTZ,
    category_id TEXT
);
CREATE TABLE IF NOT EXISTS ai_rule_sets (
    id                  TEXT PRIMARY KEY,
    user_id             TEXT NOT NULL,
    name                TEXT NOT NULL DEFAULT '',
    category            TEXT,
    tone                TEXT,
    emoji_policy        TEXT,
    greeting_style      TEXT,
    length_target       TEXT,
    fixed_phrases       JSONB,
    banned_words        JSONB,
    custom_instructions TEXT
);
CREATE TABLE IF NOT EXISTS generated_messages (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    content         TEXT NOT NULL DEFAULT '',
    source_event_id TEXT,
    rule_set_id     TEXT,
    is_favorite     BOOLEAN NOT NULL DEFAULT FALSE,
    is_archived     BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS sync_jobs (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    type        TEXT NOT NULL,
    status      TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    finished_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    result_meta JSONB
);
CREATE TABLE IF NOT EXISTS dedup (
    key   TEXT PRIMARY KEY,
    until TIMESTAMPTZ NOT NULL
);
`

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.Path)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return &pgStore{pool: pool, log: log}, nil
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *pgStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *pgStore) EventsFrom(ctx context.Context, userID string, from time.Time) ([]model.CalendarEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, description, start_at, end_at, reminder_rules
		 FROM calendar_events
		 WHERE user_id = $1 AND start_at >= $2
		 ORDER BY start_at`,
		userID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarEvent
	for rows.Next() {
		var (
			ev       model.CalendarEvent
			desc     *string
			rulesRaw []byte
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Title, &desc, &ev.StartAt, &ev.EndAt, &rulesRaw); err != nil {
			return nil, err
		}
		if desc != nil {
			ev.Description = *desc
		}
		if len(rulesRaw) > 0 {
			if err := json.Unmarshal(rulesRaw, &ev.ReminderRules); err != nil {
				ev.ReminderRules = nil
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *pgStore) DeliveryTarget(ctx context.Context, userID string) (string, error) {
	var token *string
	err := s.pool.QueryRow(ctx, `SELECT push_token FROM users WHERE id = $1`, userID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if token == nil {
		return "", nil
	}
	return *token, nil
}

func (s *pgStore) Event(ctx context.Context, userID, eventID string) (*model.CalendarEvent, error) {
	var (
		ev       model.CalendarEvent
		desc     *string
		rulesRaw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, description, start_at, end_at, reminder_rules
		 FROM calendar_events WHERE user_id = $1 AND id = $2`,
		userID, eventID).Scan(&ev.ID, &ev.UserID, &ev.Title, &desc, &ev.StartAt, &ev.EndAt, &rulesRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if desc != nil {
		ev.Description = *desc
	}
	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &ev.ReminderRules); err != nil {
			ev.ReminderRules = nil
		}
	}
	return &ev, nil
}

func (s *pgStore) RuleSet(ctx context.Context, userID, ruleSetID string) (*model.AIRuleSet, error) {
	rs, err := s.scanRuleSetRow(s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, category, tone, emoji_policy, greeting_style, length_target,
		        fixed_phrases, banned_words, custom_instructions
		 FROM ai_rule_sets WHERE user_id = $1 AND id = $2`,
		userID, ruleSetID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rs, err
}

func (s *pgStore) SaveGeneratedMessage(ctx context.Context, msg *model.GeneratedMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generated_messages
		   (id, user_id, title, content, source_event_id, rule_set_id, is_favorite, is_archived, created_at, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		msg.ID, msg.UserID, msg.Title, msg.Content, nullStr(msg.SourceEventID), nullStr(msg.RuleSetID),
		msg.IsFavorite, msg.IsArchived, msg.CreatedAt, msg.UpdatedAt)
	return err
}

func (s *pgStore) Events(ctx context.Context, userID string) ([]model.CalendarEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, description, start_at, end_at, reminder_rules
		 FROM calendar_events WHERE user_id = $1 ORDER BY start_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarEvent
	for rows.Next() {
		var (
			ev       model.CalendarEvent
			desc     *string
			rulesRaw []byte
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Title, &desc, &ev.StartAt, &ev.EndAt, &rulesRaw); err != nil {
			return nil, err
		}
		if desc != nil {
			ev.Description = *desc
		}
		if len(rulesRaw) > 0 {
			if err := json.Unmarshal(rulesRaw, &ev.ReminderRules); err != nil {
				ev.ReminderRules = nil
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *pgStore) Tasks(ctx context.Context, userID string) ([]model.TaskItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, description, reminder_at, is_completed, completed_at, created_at
		 FROM tasks WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TaskItem
	for rows.Next() {
		var (
			t    model.TaskItem
			desc *string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &desc, &t.ReminderAt, &t.IsCompleted, &t.CompletedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		if desc != nil {
			t.Description = *desc
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *pgStore) Notes(ctx context.Context, userID string) ([]model.Note, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, content, created_at, updated_at
		 FROM notes WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Note
	for rows.Next() {
		var (
			n       model.Note
			content *string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		if content != nil {
			n.Content = *content
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *pgStore) Activities(ctx context.Context, userID string) ([]model.Activity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, description, activity_at, category_id
		 FROM activities WHERE user_id = $1 ORDER BY activity_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var (
			a              model.Activity
			desc, category *string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &desc, &a.ActivityAt, &category); err != nil {
			return nil, err
		}
		if desc != nil {
			a.Description = *desc
		}
		if category != nil {
			a.CategoryID = *category
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *pgStore) RuleSets(ctx context.Context, userID string) ([]model.AIRuleSet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, category, tone, emoji_policy, greeting_style, length_target,
		        fixed_phrases, banned_words, custom_instructions
		 FROM ai_rule_sets WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AIRuleSet
	for rows.Next() {
		rs, err := s.scanRuleSetRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rs)
	}
	return out, rows.Err()
}

func (s *pgStore) GeneratedMessages(ctx context.Context, userID string) ([]model.GeneratedMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, content, source_event_id, rule_set_id, is_favorite, is_archived, created_at, updated_at
		 FROM generated_messages WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GeneratedMessage
	for rows.Next() {
		var (
			m                 model.GeneratedMessage
			srcEvent, ruleSet *string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &srcEvent, &ruleSet,
			&m.IsFavorite, &m.IsArchived, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		if srcEvent != nil {
			m.SourceEventID = *srcEvent
		}
		if ruleSet != nil {
			m.RuleSetID = *ruleSet
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *pgStore) CreateSyncJob(ctx context.Context, job *model.SyncJob) error {
	var meta any
	if strings.TrimSpace(job.ResultMeta) != "" {
		meta = []byte(job.ResultMeta)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_jobs(id, user_id, type, status, started_at, finished_at, result_meta)
		 VALUES($1,$2,$3,$4,$5,$6,$7)`,
		job.ID, job.UserID, job.Type, job.Status, job.StartedAt, job.FinishedAt, meta)
	return err
}

func (s *pgStore) SetLastBackupAt(ctx context.Context, userID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_backup_at = $1 WHERE id = $2`, at, userID)
	return err
}

func (s *pgStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dedup(key, until) VALUES($1,$2)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until)
	return err
}

func (s *pgStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var until time.Time
	err := s.pool.QueryRow(ctx, `SELECT until FROM dedup WHERE key = $1`, key).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return until, true, nil
}

func (s *pgStore) PruneDedup(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dedup WHERE until < now()`)
	return err
}

func (s *pgStore) scanRuleSetRow(r rowScanner) (*model.AIRuleSet, error) {
	var (
		rs                                      model.AIRuleSet
		category, tone, emoji, greeting, length *string
		fixedRaw, bannedRaw                     []byte
		custom                                  *string
	)
	if err := r.Scan(&rs.ID, &rs.UserID, &rs.Name, &category, &tone, &emoji, &greeting, &length,
		&fixedRaw, &bannedRaw, &custom); err != nil {
		return nil, err
	}
	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	assign(&rs.Category, category)
	assign(&rs.Tone, tone)
	assign(&rs.EmojiPolicy, emoji)
	assign(&rs.GreetingStyle, greeting)
	assign(&rs.LengthTarget, length)
	assign(&rs.CustomInstructions, custom)
	if len(fixedRaw) > 0 {
		_ = json.Unmarshal(fixedRaw, &rs.FixedPhrases)
	}
	if len(bannedRaw) > 0 {
		_ = json.Unmarshal(bannedRaw, &rs.BannedWords)
	}
	return &rs, nil
}
