package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver" // SQLite driver for database/sql
	_ "github.com/ncruces/go-sqlite3/embed"  // Embed SQLite WASM binary

	"github.com/pb33f/pagecycle/motor/model"
	"github.com/pb33f/pagecycle/report"
)

const DefaultThresholdPct = 10.0

var ErrNotEnoughRuns = errors.New("need two runs with the same fingerprint to compare")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	cycles      INTEGER NOT NULL,
	cc_total_ms REAL    NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS runs_fingerprint ON runs (fingerprint, id);
CREATE TABLE IF NOT EXISTS samples (
	run_id     INTEGER NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	page       TEXT    NOT NULL,
	page_index INTEGER NOT NULL,
	cycle      INTEGER NOT NULL,
	elapsed_ms REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_run ON samples (run_id, page_index, cycle);
`

// Store keeps finished reports in a SQLite database. It satisfies
// report.Sink.
type Store struct {
	db           *sql.DB
	logger       *slog.Logger
	thresholdPct float64
}

// Open opens, creating if needed, the database at path. ":memory:" gives a
// private in-memory database.
func Open(ctx context.Context, path string, thresholdPct float64, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if thresholdPct <= 0 {
		thresholdPct = DefaultThresholdPct
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// single writer; keeps an in-memory database alive on its one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	for _, stmt := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to prepare database: %w", err)
		}
	}

	logger.Debug("history database ready", "path", path)
	return &Store{db: db, logger: logger, thresholdPct: thresholdPct}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save records rep as a new run.
func (s *Store) Save(ctx context.Context, rep *model.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (fingerprint, started_at, finished_at, cycles, cc_total_ms) VALUES (?, ?, ?, ?, ?)`,
		rep.Fingerprint, rep.StartedAt.UnixMilli(), rep.CompletedAt.UnixMilli(), rep.Cycles, rep.CycleCollectionMs)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (run_id, page, page_index, cycle, elapsed_ms) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range rep.Pages {
		for _, sample := range p.Samples {
			if _, err := stmt.ExecContext(ctx, runID, p.Name, i, sample.Cycle, sample.ElapsedMs); err != nil {
				return fmt.Errorf("failed to insert sample for %s: %w", p.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Info("run saved to history", "run", runID, "fingerprint", rep.Fingerprint, "samples", rep.SampleCount())
	return nil
}

const runColumns = `r.id, r.fingerprint, r.started_at, r.finished_at, r.cycles, r.cc_total_ms,
	(SELECT COUNT(*) FROM samples s WHERE s.run_id = r.id)`

// Runs lists the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs r ORDER BY r.id DESC LIMIT ?`, limit)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Fingerprint, &started, &finished, &r.Cycles, &r.CycleCollectionMs, &r.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Compare sets the latest run with fingerprint against the previous one.
// A page whose median grew by more than the threshold is a degradation.
func (s *Store) Compare(ctx context.Context, fingerprint string) (*Comparison, error) {
	runs, err := s.queryRuns(ctx,
		`SELECT `+runColumns+` FROM runs r WHERE r.fingerprint = ? ORDER BY r.id DESC LIMIT 2`, fingerprint)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, ErrNotEnoughRuns
	}

	current, err := s.medians(ctx, runs[0].ID)
	if err != nil {
		return nil, err
	}
	previous, err := s.medians(ctx, runs[1].ID)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{Current: runs[0], Previous: runs[1], ThresholdPct: s.thresholdPct}
	for _, page := range current.order {
		prev, ok := previous.values[page]
		if !ok {
			continue
		}
		cur := current.values[page]
		delta := PageDelta{Page: page, PreviousMedian: prev, CurrentMedian: cur}
		if prev > 0 {
			delta.ChangePct = (cur - prev) / prev * 100
		}
		delta.Degradation = delta.ChangePct > s.thresholdPct
		cmp.Degradation = cmp.Degradation || delta.Degradation
		cmp.Pages = append(cmp.Pages, delta)
	}
	return cmp, nil
}

type pageMedians struct {
	order  []string
	values map[string]float64
}

func (s *Store) medians(ctx context.Context, runID int64) (*pageMedians, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page, elapsed_ms FROM samples WHERE run_id = ? ORDER BY page_index, cycle`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := make(map[string][]float64)
	var order []string
	for rows.Next() {
		var page string
		var elapsed float64
		if err := rows.Scan(&page, &elapsed); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if _, ok := samples[page]; !ok {
			order = append(order, page)
		}
		samples[page] = append(samples[page], elapsed)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := &pageMedians{order: order, values: make(map[string]float64, len(samples))}
	for page, values := range samples {
		out.values[page] = report.Median(values)
	}
	return out, nil
}
