package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mkaufman2023/enteliweb/internal/gateway"
)

// timeFormat is how timestamps are stored; it sorts lexically.
const timeFormat = time.RFC3339Nano

// Logger is the logging interface used by the journal.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Run is one journalled workflow run.
type Run struct {
	gateway.AsyncTask

	// FilePath is the local artifact of a save workflow, if recorded.
	FilePath string

	UpdatedAt time.Time
}

// Journal persists AsyncTask transitions to the task_runs table.
//
// It implements gateway.TaskObserver: pass it as Options.Observer and every
// transition is upserted keyed by RunID, so the row always holds the latest
// state of the run.
//
// Thread Safety: All methods are safe for concurrent use.
type Journal struct {
	db     *sql.DB
	logger Logger
	now    func() time.Time

	upsertStmt *sql.Stmt
	stmtMu     sync.Mutex

	closed bool
	mu     sync.RWMutex
}

// New creates a journal on db. The task_runs table must exist; it is
// created by the embedded migrations.
func New(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// SetLogger sets the logger for the journal.
func (j *Journal) SetLogger(logger Logger) {
	j.logger = logger
}

// Start prepares the journal for use. Transitions before Start are dropped.
func (j *Journal) Start() error {
	j.stmtMu.Lock()
	defer j.stmtMu.Unlock()

	if j.upsertStmt != nil {
		return nil
	}

	stmt, err := j.db.Prepare(`
		INSERT INTO task_runs (run_id, kind, target, task_id, status, phase, attempts,
			max_attempts, message, started_at, finished_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			task_id = excluded.task_id,
			status = excluded.status,
			phase = excluded.phase,
			attempts = excluded.attempts,
			message = excluded.message,
			finished_at = excluded.finished_at,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing task upsert statement: %w", err)
	}
	j.upsertStmt = stmt

	j.mu.Lock()
	j.closed = false
	j.mu.Unlock()

	j.log("task journal started")
	return nil
}

// Stop releases the prepared statement. Later transitions are dropped.
func (j *Journal) Stop() {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()

	j.stmtMu.Lock()
	defer j.stmtMu.Unlock()
	if j.upsertStmt != nil {
		j.upsertStmt.Close()
		j.upsertStmt = nil
	}
	j.log("task journal stopped")
}

// TaskChanged records one transition. Write failures are logged, never
// returned, so a broken journal cannot fail a workflow.
func (j *Journal) TaskChanged(task gateway.AsyncTask) {
	j.mu.RLock()
	closed := j.closed
	j.mu.RUnlock()
	if closed {
		return
	}

	j.stmtMu.Lock()
	defer j.stmtMu.Unlock()
	if j.upsertStmt == nil {
		return
	}

	_, err := j.upsertStmt.Exec(
		task.RunID,
		string(task.Kind),
		task.Target,
		nullString(task.TaskID),
		string(task.Status),
		nullString(task.Phase),
		task.Attempts,
		task.MaxAttempts,
		nullString(task.Message),
		task.StartedAt.UTC().Format(timeFormat),
		nullTime(task.FinishedAt),
		j.now().UTC().Format(timeFormat),
	)
	if err != nil && j.logger != nil {
		j.logger.Error("recording task transition", "run_id", task.RunID, "error", err)
	}
}

// RecordResult stores the artifact path of a finished run.
func (j *Journal) RecordResult(ctx context.Context, res gateway.TaskResult) error {
	if res.FilePath == "" {
		return nil
	}
	result, err := j.db.ExecContext(ctx,
		`UPDATE task_runs SET file_path = ?, updated_at = ? WHERE run_id = ?`,
		res.FilePath, j.now().UTC().Format(timeFormat), res.Task.RunID,
	)
	if err != nil {
		return fmt.Errorf("recording result of %s: %w", res.Task.RunID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, res.Task.RunID)
	}
	return nil
}

const selectRun = `
	SELECT run_id, kind, target, task_id, status, phase, attempts, max_attempts,
		message, started_at, finished_at, updated_at, file_path
	FROM task_runs`

// Get returns one run by its RunID.
func (j *Journal) Get(ctx context.Context, runID string) (Run, error) {
	row := j.db.QueryRowContext(ctx, selectRun+` WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidQuery)
	}
	rows, err := j.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying task runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountByStatus returns the number of runs in each status.
func (j *Journal) CountByStatus(ctx context.Context) (map[gateway.TaskStatus]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM task_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting task runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[gateway.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[gateway.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

// PruneBefore deletes finished runs that started before cutoff and returns
// how many were removed. Unfinished runs are kept.
func (j *Journal) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx,
		`DELETE FROM task_runs WHERE started_at < ? AND finished_at IS NOT NULL`,
		cutoff.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning task runs: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run                          Run
		kind, status                 string
		taskID, phase, message, file sql.NullString
		startedAt, updatedAt         string
		finishedAt                   sql.NullString
	)
	err := s.Scan(&run.RunID, &kind, &run.Target, &taskID, &status, &phase,
		&run.Attempts, &run.MaxAttempts, &message, &startedAt, &finishedAt, &updatedAt, &file)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scanning task run: %w", err)
	}

	run.Kind = gateway.TaskKind(kind)
	run.Status = gateway.TaskStatus(status)
	run.TaskID = taskID.String
	run.Phase = phase.String
	run.Message = message.String
	run.FilePath = file.String
	run.StartedAt, _ = time.Parse(timeFormat, startedAt) //nolint:errcheck // written by TaskChanged
	run.UpdatedAt, _ = time.Parse(timeFormat, updatedAt) //nolint:errcheck // written by TaskChanged
	if finishedAt.Valid {
		run.FinishedAt, _ = time.Parse(timeFormat, finishedAt.String) //nolint:errcheck // written by TaskChanged
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func (j *Journal) log(msg string, args ...any) {
	if j.logger != nil {
		j.logger.Info(msg, args...)
	}
}
