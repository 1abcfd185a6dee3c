// Package history keeps a persistent log of finished runs.
//
// Uses SQLite through the pure Go driver, so the binary stays cgo free.
// Script output is stored lz4 compressed.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Run is one finished run as recorded in the log.
type Run struct {
	ID        string        `json:"id"`
	Session   string        `json:"session"`
	Script    string        `json:"script"`
	Status    string        `json:"status"`
	ExitCode  int           `json:"exit_code"`
	Error     string        `json:"error,omitempty"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	Produced  []string      `json:"produced,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Session string
	Status  string
	Limit   int
}

// Store is the run log.
type Store struct {
	db *sql.DB
}

// Open opens or creates a run log at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		session TEXT NOT NULL DEFAULT '',
		script TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		stdout_lz4 BLOB,
		stderr_lz4 BLOB,
		warnings_json TEXT NOT NULL DEFAULT '[]',
		produced_json TEXT NOT NULL DEFAULT '[]',
		started_at_ns INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at_ns);
	`)
	return err
}

// Record stores r. Recording the same ID twice replaces the earlier entry.
func (s *Store) Record(ctx context.Context, r *Run) error {
	stdout, err := compress(r.Stdout)
	if err != nil {
		return err
	}
	stderr, err := compress(r.Stderr)
	if err != nil {
		return err
	}
	warnings, err := marshalList(r.Warnings)
	if err != nil {
		return err
	}
	produced, err := marshalList(r.Produced)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, session, script, status, exit_code, error,
			stdout_lz4, stderr_lz4, warnings_json, produced_json, started_at_ns, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Session, r.Script, r.Status, r.ExitCode, r.Error,
		stdout, stderr, warnings, produced, r.StartedAt.UnixNano(), int64(r.Duration))
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the run with the given ID, including its output.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var (
		r                  Run
		stdout, stderr     []byte
		warnings, produced string
		startedAt, dur     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session, script, status, exit_code, error, stdout_lz4, stderr_lz4,
			warnings_json, produced_json, started_at_ns, duration_ns
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Session, &r.Script, &r.Status, &r.ExitCode, &r.Error,
		&stdout, &stderr, &warnings, &produced, &startedAt, &dur)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	if r.Stdout, err = decompress(stdout); err != nil {
		return nil, err
	}
	if r.Stderr, err = decompress(stderr); err != nil {
		return nil, err
	}
	if r.Warnings, err = unmarshalList(warnings); err != nil {
		return nil, err
	}
	if r.Produced, err = unmarshalList(produced); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, startedAt)
	r.Duration = time.Duration(dur)
	return &r, nil
}

// List returns runs newest first. Output is not loaded; use Get for that.
func (s *Store) List(ctx context.Context, f Filter) ([]*Run, error) {
	query := "SELECT id, session, script, status, exit_code, error, produced_json, started_at_ns, duration_ns FROM runs WHERE 1=1"
	var args []any
	if f.Session != "" {
		query += " AND session = ?"
		args = append(args, f.Session)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY started_at_ns DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		var (
			r              Run
			produced       string
			startedAt, dur int64
		)
		if err := rows.Scan(&r.ID, &r.Session, &r.Script, &r.Status, &r.ExitCode, &r.Error,
			&produced, &startedAt, &dur); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.Produced, err = unmarshalList(produced); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, startedAt)
		r.Duration = time.Duration(dur)
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// Prune deletes runs that started more than maxAge ago and reports how
// many were removed.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at_ns < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func marshalList(v []string) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func unmarshalList(s string) ([]string, error) {
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}
