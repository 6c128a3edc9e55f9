// Package ledger keeps a SQLite history of check runs and their per-row
// outcomes.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/raysh454/stagecheck/internal/checker"
	"github.com/raysh454/stagecheck/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

var ErrRunNotFound = errors.New("run not found")

type Run struct {
	ID         string          `json:"id"`
	Mode       string          `json:"mode"`
	Input      string          `json:"input"`
	Output     string          `json:"output"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Summary    checker.Summary `json:"summary"`
}

// Result is one classified row. StatusCode is 0 when the probe was
// unresolved or the row had no target.
type Result struct {
	RowIndex       int    `json:"row_index"`
	URL            string `json:"url"`
	StatusCode     int    `json:"status_code,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Classification string `json:"classification"`
}

type Ledger struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, logger logging.Logger) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger: empty path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	l, err := New(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// New applies the schema to an open database.
func New(db *sql.DB, logger logging.Logger) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	for _, p := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("set %q: %w", p, err)
		}
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &Ledger{db: db, logger: logger.With(logging.Field{Key: "component", Value: "ledger"})}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// SaveRun stores run and its results in one transaction and returns the run
// ID. A run without an ID gets a new UUID.
func (l *Ledger) SaveRun(ctx context.Context, run Run, results []Result) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	// If Commit() succeeds, Rollback() returns sql.ErrTxDone which we ignore.
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			l.logger.Warn("ledger: tx rollback failed", logging.Field{Key: "error", Value: rerr})
		}
	}()

	s := run.Summary
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs
		(id, mode, input, output, started_at, finished_at, row_count, probed_count, yes_count, not_found_count, no_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Input, run.Output, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		s.Rows, s.Probed, s.Yes, s.NotFound, s.No); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results
		(run_id, row_index, url, status_code, reason, classification)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for _, r := range results {
		var code sql.NullInt64
		if r.StatusCode != 0 {
			code = sql.NullInt64{Int64: int64(r.StatusCode), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, run.ID, r.RowIndex, r.URL, code, r.Reason, r.Classification); err != nil {
			return "", fmt.Errorf("insert result %d: %w", r.RowIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	l.logger.Debug("saved run", logging.Field{Key: "run_id", Value: run.ID}, logging.Field{Key: "results", Value: len(results)})
	return run.ID, nil
}

const runColumns = `id, mode, input, output, started_at, finished_at, row_count, probed_count, yes_count, not_found_count, no_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                 Run
		started, finished int64
	)
	err := sc.Scan(&r.ID, &r.Mode, &r.Input, &r.Output, &started, &finished,
		&r.Summary.Rows, &r.Summary.Probed, &r.Summary.Yes, &r.Summary.NotFound, &r.Summary.No)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started)
	r.FinishedAt = time.UnixMilli(finished)
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *Ledger) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResults returns a run's results ordered by row index.
func (l *Ledger) ListResults(ctx context.Context, runID string) ([]Result, error) {
	if _, err := l.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, `SELECT row_index, url, status_code, reason, classification
		FROM results WHERE run_id = ? ORDER BY row_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			r    Result
			code sql.NullInt64
		)
		if err := rows.Scan(&r.RowIndex, &r.URL, &code, &r.Reason, &r.Classification); err != nil {
			return nil, err
		}
		if code.Valid {
			r.StatusCode = int(code.Int64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
