package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"notlarim/internal/model"
	"notlarim/pkg/logx"
)

//go:embed migrations_sqlite.sql
var sqliteMigrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := sqliteMigrationsFS.ReadFile("migrations_sqlite.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- reminder engine reads ----

func (s *sqliteStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
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

func (s *sqliteStore) EventsFrom(ctx context.Context, userID string, from time.Time) ([]model.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, start_at, end_at, reminder_rules
		 FROM calendar_events
		 WHERE user_id = ? AND start_at >= ?
		 ORDER BY start_at`,
		userID, from.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeliveryTarget(ctx context.Context, userID string) (string, error) {
	var token sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT push_token FROM users WHERE id = ?`, userID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token.String, nil
}

// ---- message generation ----

func (s *sqliteStore) Event(ctx context.Context, userID, eventID string) (*model.CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, start_at, end_at, reminder_rules
		 FROM calendar_events WHERE user_id = ? AND id = ?`,
		userID, eventID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ev, err
}

func (s *sqliteStore) RuleSet(ctx context.Context, userID, ruleSetID string) (*model.AIRuleSet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, category, tone, emoji_policy, greeting_style, length_target,
		        fixed_phrases, banned_words, custom_instructions
		 FROM ai_rule_sets WHERE user_id = ? AND id = ?`,
		userID, ruleSetID)
	rs, err := scanRuleSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rs, err
}

func (s *sqliteStore) SaveGeneratedMessage(ctx context.Context, msg *model.GeneratedMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generated_messages
		   (id, user_id, title, content, source_event_id, rule_set_id, is_favorite, is_archived, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		msg.ID, msg.UserID, msg.Title, msg.Content, nullStr(msg.SourceEventID), nullStr(msg.RuleSetID),
		boolInt(msg.IsFavorite), boolInt(msg.IsArchived), msg.CreatedAt.UnixMilli(), msg.UpdatedAt.UnixMilli())
	return err
}

// ---- exports ----

func (s *sqliteStore) Events(ctx context.Context, userID string) ([]model.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, start_at, end_at, reminder_rules
		 FROM calendar_events WHERE user_id = ? ORDER BY start_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Tasks(ctx context.Context, userID string) ([]model.TaskItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, reminder_at, is_completed, completed_at, created_at
		 FROM tasks WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TaskItem
	for rows.Next() {
		var (
			t         model.TaskItem
			desc      sql.NullString
			remindAt  sql.NullInt64
			completed int
			doneAt    sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &desc, &remindAt, &completed, &doneAt, &createdAt); err != nil {
			return nil, err
		}
		t.Description = desc.String
		t.ReminderAt = msToTime(remindAt)
		t.IsCompleted = completed != 0
		t.CompletedAt = msToTime(doneAt)
		t.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Notes(ctx context.Context, userID string) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, content, created_at, updated_at
		 FROM notes WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Note
	for rows.Next() {
		var (
			n                    model.Note
			content              sql.NullString
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &content, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		n.Content = content.String
		n.CreatedAt = time.UnixMilli(createdAt)
		n.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Activities(ctx context.Context, userID string) ([]model.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, activity_at, category_id
		 FROM activities WHERE user_id = ? ORDER BY activity_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var (
			a        model.Activity
			desc     sql.NullString
			at       sql.NullInt64
			category sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &desc, &at, &category); err != nil {
			return nil, err
		}
		a.Description = desc.String
		a.ActivityAt = msToTime(at)
		a.CategoryID = category.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RuleSets(ctx context.Context, userID string) ([]model.AIRuleSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, category, tone, emoji_policy, greeting_style, length_target,
		        fixed_phrases, banned_words, custom_instructions
		 FROM ai_rule_sets WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AIRuleSet
	for rows.Next() {
		rs, err := scanRuleSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rs)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GeneratedMessages(ctx context.Context, userID string) ([]model.GeneratedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, content, source_event_id, rule_set_id, is_favorite, is_archived, created_at, updated_at
		 FROM generated_messages WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GeneratedMessage
	for rows.Next() {
		var (
			m                    model.GeneratedMessage
			srcEvent, ruleSet    sql.NullString
			fav, arch            int
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &srcEvent, &ruleSet, &fav, &arch, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		m.SourceEventID = srcEvent.String
		m.RuleSetID = ruleSet.String
		m.IsFavorite = fav != 0
		m.IsArchived = arch != 0
		m.CreatedAt = time.UnixMilli(createdAt)
		m.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CreateSyncJob(ctx context.Context, job *model.SyncJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_jobs(id, user_id, type, status, started_at, finished_at, result_meta)
		 VALUES(?,?,?,?,?,?,?)`,
		job.ID, job.UserID, job.Type, job.Status,
		job.StartedAt.UnixMilli(), job.FinishedAt.UnixMilli(), nullStr(job.ResultMeta))
	return err
}

func (s *sqliteStore) SetLastBackupAt(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_backup_at = ? WHERE id = ?`, at.UnixMilli(), userID)
	return err
}

// ---- idempotency keys ----

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli())
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) PruneDedup(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, time.Now().UnixMilli())
	return err
}

// ---- scan helpers ----

// rowScanner lets the same scan code serve QueryRow and Query rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*model.CalendarEvent, error) {
	var (
		ev             model.CalendarEvent
		desc           sql.NullString
		startAt, endAt sql.NullInt64
		rulesRaw       sql.NullString
	)
	if err := r.Scan(&ev.ID, &ev.UserID, &ev.Title, &desc, &startAt, &endAt, &rulesRaw); err != nil {
		return nil, err
	}
	ev.Description = desc.String
	ev.StartAt = msToTime(startAt)
	ev.EndAt = msToTime(endAt)
	if rulesRaw.Valid && rulesRaw.String != "" {
		// Rules are stored as the app wrote them. A corrupt blob makes
		// the event rule-less, not the query fatal.
		if err := json.Unmarshal([]byte(rulesRaw.String), &ev.ReminderRules); err != nil {
			ev.ReminderRules = nil
		}
	}
	return &ev, nil
}

func scanRuleSet(r rowScanner) (*model.AIRuleSet, error) {
	var (
		rs                                      model.AIRuleSet
		category, tone, emoji, greeting, length sql.NullString
		fixedRaw, bannedRaw, custom             sql.NullString
	)
	if err := r.Scan(&rs.ID, &rs.UserID, &rs.Name, &category, &tone, &emoji, &greeting, &length,
		&fixedRaw, &bannedRaw, &custom); err != nil {
		return nil, err
	}
	rs.Category = category.String
	rs.Tone = tone.String
	rs.EmojiPolicy = emoji.String
	rs.GreetingStyle = greeting.String
	rs.LengthTarget = length.String
	rs.CustomInstructions = custom.String
	if fixedRaw.Valid && fixedRaw.String != "" {
		_ = json.Unmarshal([]byte(fixedRaw.String), &rs.FixedPhrases)
	}
	if bannedRaw.Valid && bannedRaw.String != "" {
		_ = json.Unmarshal([]byte(bannedRaw.String), &rs.BannedWords)
	}
	return &rs, nil
}

func msToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
