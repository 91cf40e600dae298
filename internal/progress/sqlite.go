package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bodul/xword/internal/crossword"
	"github.com/bodul/xword/internal/progress/migrations"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// OpenSQLite opens the database at path and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, key Key, rec Record) error {
	if rec.SavedAt.IsZero() {
		rec.SavedAt = s.now()
	}
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return &PersistenceError{Op: "save", Key: key, Err: err}
	}
	completed := rec.CompletedClues
	if completed == nil {
		completed = []crossword.ClueID{}
	}
	clues, err := json.Marshal(completed)
	if err != nil {
		return &PersistenceError{Op: "save", Key: key, Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress (owner, puzzle_date, answers, completed_clues, started_at, completed_at, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner, puzzle_date) DO UPDATE SET
		   answers = excluded.answers,
		   completed_clues = excluded.completed_clues,
		   started_at = excluded.started_at,
		   completed_at = excluded.completed_at,
		   saved_at = excluded.saved_at`,
		key.Owner, key.Date, string(answers), string(clues),
		nullMillis(rec.StartedAt), nullMillis(rec.CompletedAt), toMillis(rec.SavedAt),
	)
	if err != nil {
		return &PersistenceError{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, key Key, maxAge time.Duration) (*Record, error) {
	var (
		answers, clues         string
		startedAt, completedAt sql.NullInt64
		savedAt                int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT answers, completed_clues, started_at, completed_at, saved_at
		 FROM progress WHERE owner = ? AND puzzle_date = ?`,
		key.Owner, key.Date,
	).Scan(&answers, &clues, &startedAt, &completedAt, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Key: key, Err: err}
	}

	rec := Record{Date: key.Date, SavedAt: fromMillis(savedAt)}
	if expired(rec.SavedAt, s.now(), maxAge) {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(answers), &rec.Answers); err != nil {
		return nil, &PersistenceError{Op: "load", Key: key, Err: fmt.Errorf("decode answers: %w", err)}
	}
	if err := json.Unmarshal([]byte(clues), &rec.CompletedClues); err != nil {
		return nil, &PersistenceError{Op: "load", Key: key, Err: fmt.Errorf("decode completed clues: %w", err)}
	}
	rec.StartedAt = timeOrNil(startedAt)
	rec.CompletedAt = timeOrNil(completedAt)
	return &rec, nil
}

// Reset implements Store.
func (s *SQLiteStore) Reset(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM progress WHERE owner = ? AND puzzle_date = ?`, key.Owner, key.Date)
	if err != nil {
		return &PersistenceError{Op: "reset", Key: key, Err: err}
	}
	return nil
}

// Prune implements Store.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM progress WHERE saved_at < ?`, toMillis(before))
	if err != nil {
		return 0, &PersistenceError{Op: "prune", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &PersistenceError{Op: "prune", Err: err}
	}
	return int(n), nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
