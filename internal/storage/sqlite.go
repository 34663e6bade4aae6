package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// SQLiteProgress is the durable UserProgress store. Save enforces the
// record invariants in SQL so a stale writer cannot clear a milestone or
// raise the skip budget.
type SQLiteProgress struct {
	db         *sql.DB
	skipBudget int
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string, skipBudget int) (*SQLiteProgress, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteProgress{db: db, skipBudget: max(skipBudget, 0)}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteProgress) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS user_progress (
		user_id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		skip_budget INTEGER NOT NULL CHECK (skip_budget >= 0),
		started_at INTEGER,
		finished_at INTEGER,
		last_skip_message_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_progress_finished ON user_progress(finished_at) WHERE finished_at IS NOT NULL;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteProgress) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteProgress) Close() error {
	return s.db.Close()
}

const progressColumns = `user_id, first_name, last_name, username, skip_budget,
	started_at, finished_at, last_skip_message_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(row scanner) (*quest.UserProgress, error) {
	var p quest.UserProgress
	var started, finished sql.NullInt64
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Username, &p.SkipBudget,
		&started, &finished, &p.LastSkipMessageID)
	if err != nil {
		return nil, err
	}
	p.StartedAt = fromUnix(started)
	p.FinishedAt = fromUnix(finished)
	return &p, nil
}

func fromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func toUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

// GetOrCreate inserts a default record if none exists and returns the stored one.
func (s *SQLiteProgress) GetOrCreate(ctx context.Context, id quest.Identity) (*quest.UserProgress, error) {
	if id.ID == "" {
		return nil, errors.New("user id cannot be empty")
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO user_progress (user_id, first_name, last_name, username, skip_budget, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO NOTHING`,
		id.ID, id.FirstName, id.LastName, id.Username, s.skipBudget, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert progress: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM user_progress WHERE user_id = ?`, id.ID)
	p, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("scan progress row: %w", err)
	}
	return p, nil
}

// Save writes the whole record. Milestones already stored are kept and the
// skip budget only moves down.
func (s *SQLiteProgress) Save(ctx context.Context, p *quest.UserProgress) error {
	if p == nil || p.ID == "" {
		return errors.New("progress must have an id")
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO user_progress (user_id, first_name, last_name, username, skip_budget,
		started_at, finished_at, last_skip_message_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		username = excluded.username,
		skip_budget = MIN(user_progress.skip_budget, excluded.skip_budget),
		started_at = COALESCE(user_progress.started_at, excluded.started_at),
		finished_at = COALESCE(user_progress.finished_at, excluded.finished_at),
		last_skip_message_id = excluded.last_skip_message_id,
		updated_at = excluded.updated_at`,
		p.ID, p.FirstName, p.LastName, p.Username, max(p.SkipBudget, 0),
		toUnix(p.StartedAt), toUnix(p.FinishedAt), p.LastSkipMessageID, now, now)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Stats counts participants and finishes per UTC day since the given time.
func (s *SQLiteProgress) Stats(ctx context.Context, since time.Time) (*quest.Stats, error) {
	st := &quest.Stats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(started_at), COUNT(finished_at) FROM user_progress`).
		Scan(&st.Total, &st.Started, &st.Finished)
	if err != nil {
		return nil, fmt.Errorf("count progress: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT date(finished_at, 'unixepoch') AS day, COUNT(*)
	FROM user_progress
	WHERE finished_at IS NOT NULL AND finished_at >= ?
	GROUP BY day
	ORDER BY day`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query finished per day: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day string
		var dc quest.DayCount
		if err := rows.Scan(&day, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan day row: %w", err)
		}
		if dc.Day, err = time.Parse(time.DateOnly, day); err != nil {
			return nil, fmt.Errorf("parse day %q: %w", day, err)
		}
		st.FinishedByDay = append(st.FinishedByDay, dc)
	}
	return st, rows.Err()
}

// List returns every record, most recently started first.
func (s *SQLiteProgress) List(ctx context.Context) ([]*quest.UserProgress, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+progressColumns+` FROM user_progress
	ORDER BY started_at IS NULL, started_at DESC, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []*quest.UserProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
