// Package history persists summaries of finished pipeline runs in a local
// SQLite database so past runs can be listed and compared.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// RunRecord is the persisted summary of one pipeline run.
type RunRecord struct {
	ID          int64
	RunID       string
	CreatedAt   time.Time
	Status      string
	UserInput   string
	Model       string
	TotalTokens int64
	TotalCost   float64
	DurationMS  int64
	Error       string
}

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the history database at dbPath.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		status TEXT NOT NULL,
		user_input TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		total_tokens INTEGER NOT NULL DEFAULT 0,
		total_cost REAL NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun appends one finished run summary.
func (s *Store) SaveRun(rec *RunRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO runs (run_id, status, user_input, model, total_tokens, total_cost, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Status, rec.UserInput, rec.Model,
		rec.TotalTokens, rec.TotalCost, rec.DurationMS, rec.Error,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, created_at, status, user_input, model, total_tokens, total_cost, duration_ms, error
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.CreatedAt, &rec.Status, &rec.UserInput,
			&rec.Model, &rec.TotalTokens, &rec.TotalCost, &rec.DurationMS, &rec.Error,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
