package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrRunNotFound is returned by ReadRun when no run has the given id.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is a finished stage run.
type RunRecord struct {
	ID         string        `json:"id"`
	Stage      string        `json:"stage"`
	Part       string        `json:"part,omitempty"`
	Guarantees string        `json:"guarantees"`
	Status     string        `json:"status"`
	Fault      string        `json:"fault,omitempty"`
	Suppressed []string      `json:"suppressed,omitempty"`
	OrderKey   string        `json:"order_key,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Elapsed    time.Duration `json:"elapsed"`
	Steps      []StepRecord  `json:"steps,omitempty"`
}

// StepRecord is one step of a run with its final stats.
type StepRecord struct {
	Position  int              `json:"position"`
	Name      string           `json:"name"`
	Completed bool             `json:"completed"`
	Stats     map[string]int64 `json:"stats"`
}

// RunSummary is a run without its steps, as listed by ListRuns.
type RunSummary struct {
	ID        string        `json:"id"`
	Stage     string        `json:"stage"`
	Part      string        `json:"part,omitempty"`
	Status    string        `json:"status"`
	Fault     string        `json:"fault,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Steps     int           `json:"steps"`
}

// WriteRun inserts a run with its steps and stats in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - writing the same run id
// twice keeps the first record.
func (s *Store) WriteRun(ctx context.Context, run RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("write run: empty id")
	}
	if run.Status != StatusOK && run.Status != StatusFailed {
		return fmt.Errorf("write run %s: invalid status %q", run.ID, run.Status)
	}

	suppressed, err := marshalSuppressed(run.Suppressed)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run %s: begin: %w", run.ID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, stage, part, guarantees, status, fault, suppressed, order_key, started_at, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		normalizeName(run.Stage),
		normalizeName(run.Part),
		run.Guarantees,
		run.Status,
		run.Fault,
		suppressed,
		run.OrderKey,
		run.StartedAt.UnixMilli(),
		run.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already recorded.
		return nil
	}

	for _, step := range run.Steps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_steps (run_id, position, name, completed)
			VALUES (?, ?, ?, ?)
		`, run.ID, step.Position, normalizeName(step.Name), step.Completed); err != nil {
			return fmt.Errorf("write run %s: step %d: %w", run.ID, step.Position, err)
		}
		for stat, value := range step.Stats {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO step_stats (run_id, position, stat, value)
				VALUES (?, ?, ?, ?)
			`, run.ID, step.Position, stat, value); err != nil {
				return fmt.Errorf("write run %s: step %d stat %s: %w", run.ID, step.Position, stat, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run %s: commit: %w", run.ID, err)
	}
	return nil
}

// ReadRun returns the run with the given id, steps in stage order.
// Returns ErrRunNotFound if there is no such run.
func (s *Store) ReadRun(ctx context.Context, id string) (RunRecord, error) {
	var (
		run        RunRecord
		suppressed string
		startedMs  int64
		elapsedMs  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, stage, part, guarantees, status, fault, suppressed, order_key, started_at, elapsed_ms
		FROM runs
		WHERE id = ?
	`, id).Scan(
		&run.ID,
		&run.Stage,
		&run.Part,
		&run.Guarantees,
		&run.Status,
		&run.Fault,
		&suppressed,
		&run.OrderKey,
		&startedMs,
		&elapsedMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run %s: %w", id, err)
	}

	run.Suppressed, err = unmarshalSuppressed(suppressed)
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run %s: %w", id, err)
	}
	run.StartedAt = time.UnixMilli(startedMs).UTC()
	run.Elapsed = time.Duration(elapsedMs) * time.Millisecond

	run.Steps, err = s.readSteps(ctx, id)
	if err != nil {
		return RunRecord{}, err
	}
	return run, nil
}

// readSteps returns the steps of a run with their stats.
func (s *Store) readSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, name, completed
		FROM run_steps
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []StepRecord{}
	index := make(map[int]int)
	for rows.Next() {
		var step StepRecord
		if err := rows.Scan(&step.Position, &step.Name, &step.Completed); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Stats = make(map[string]int64)
		index[step.Position] = len(steps)
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}

	statRows, err := s.db.QueryContext(ctx, `
		SELECT position, stat, value
		FROM step_stats
		WHERE run_id = ?
		ORDER BY position ASC, stat ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query step stats: %w", err)
	}
	defer statRows.Close()

	for statRows.Next() {
		var (
			position int
			stat     string
			value    int64
		)
		if err := statRows.Scan(&position, &stat, &value); err != nil {
			return nil, fmt.Errorf("scan step stat: %w", err)
		}
		if i, ok := index[position]; ok {
			steps[i].Stats[stat] = value
		}
	}
	if err := statRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step stats: %w", err)
	}

	return steps, nil
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all runs.
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
		SELECT r.id, r.stage, r.part, r.status, r.fault, r.started_at, r.elapsed_ms,
		       (SELECT COUNT(*) FROM run_steps s WHERE s.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			run       RunSummary
			startedMs int64
			elapsedMs int64
		)
		if err := rows.Scan(
			&run.ID,
			&run.Stage,
			&run.Part,
			&run.Status,
			&run.Fault,
			&startedMs,
			&elapsedMs,
			&run.Steps,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.UnixMilli(startedMs).UTC()
		run.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// CountRuns returns the number of stored runs.
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}
