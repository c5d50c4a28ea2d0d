package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Sentinel errors and status constants for eval run storage operations.
var (
	ErrEvalRunNotFound  = errors.New("eval run not found")
	ErrEvalRunNotCancel = errors.New("eval run cannot be canceled from its current status")
)

// Eval run lifecycle states: pending -> running -> {completed, failed, canceled}.
const (
	EvalRunStatusPending   = "pending"
	EvalRunStatusRunning   = "running"
	EvalRunStatusCompleted = "completed"
	EvalRunStatusFailed    = "failed"
	EvalRunStatusCanceled  = "canceled"
)

// EvalRun is the root of one evaluation: a prompt version run against a
// dataset across one or more models, graded by a shared assertion set.
type EvalRun struct {
	ID               string
	PromptVersionID  string
	DatasetID        string
	ModelIDs         []string
	Assertions       json.RawMessage // []assert.Assertion, kept opaque at the storage layer
	Status           string
	ConcurrencyLimit int
	MaxRetries       int
	TotalTasks       int
	CompletedTasks   int
	FailedTasks      int
	ErrorMessage     *string
	Summary          *Summary
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// Progress is the coherent mid-run state of a drain: completed+failed never
// exceeds total, and the run reaches a terminal status only once every task
// has reached one.
type Progress struct {
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Percent   float64 `json:"percent"`
}

// Progress computes the run's current progress snapshot.
func (r *EvalRun) Progress() Progress {
	p := Progress{Total: r.TotalTasks, Completed: r.CompletedTasks, Failed: r.FailedTasks}
	if p.Total > 0 {
		p.Percent = float64(p.Completed+p.Failed) / float64(p.Total) * 100
	}

	return p
}

// Summary is the aggregated outcome of a drained eval run.
type Summary struct {
	Total          int                   `json:"total"`
	Passed         int                   `json:"passed"`
	Failed         int                   `json:"failed"`
	PassRate       float64               `json:"pass_rate"`
	AvgScore       float64               `json:"avg_score"`
	TotalLatencyMs int64                 `json:"total_latency_ms"`
	AvgLatencyMs   float64               `json:"avg_latency_ms"`
	TotalCostUSD   float64               `json:"total_cost_usd"`
	ByModel        map[string]ModelStats `json:"by_model"`
}

// ModelStats is the per-model slice of a run summary.
type ModelStats struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	PassRate float64 `json:"pass_rate"`
}

// EvalRunStore persists eval runs and implements the SKIP LOCKED dequeue
// primitive the scheduler uses to claim pending runs.
type EvalRunStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewEvalRunStore creates an EvalRunStore backed by conn.
func NewEvalRunStore(conn *Connection) *EvalRunStore {
	return &EvalRunStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: getEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// CreateRun inserts a new eval run in status pending.
func (s *EvalRunStore) CreateRun(ctx context.Context, r *EvalRun) error {
	modelIDsJSON, err := json.Marshal(r.ModelIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal model_ids: %w", err)
	}

	assertions := r.Assertions
	if assertions == nil {
		assertions = json.RawMessage("[]")
	}

	query := `
		INSERT INTO eval_runs (
			id, prompt_version_id, dataset_id, model_ids, assertions,
			status, concurrency_limit, max_retries, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.conn.ExecContext(ctx, query,
		r.ID, r.PromptVersionID, r.DatasetID, modelIDsJSON, []byte(assertions),
		EvalRunStatusPending, r.ConcurrencyLimit, r.MaxRetries, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert eval run: %w", err)
	}

	return nil
}

// GetRun fetches an eval run by ID.
func (s *EvalRunStore) GetRun(ctx context.Context, id string) (*EvalRun, error) {
	query := `
		SELECT id, prompt_version_id, dataset_id, model_ids, assertions, status,
		       concurrency_limit, max_retries, total_tasks, completed_tasks, failed_tasks,
		       error_message, summary, created_at, started_at, completed_at
		FROM eval_runs
		WHERE id = $1
	`

	return scanEvalRun(s.conn.QueryRowContext(ctx, query, id))
}

// ListRuns returns eval runs ordered by creation time, newest first.
func (s *EvalRunStore) ListRuns(ctx context.Context, limit, offset int) ([]*EvalRun, error) {
	query := `
		SELECT id, prompt_version_id, dataset_id, model_ids, assertions, status,
		       concurrency_limit, max_retries, total_tasks, completed_tasks, failed_tasks,
		       error_message, summary, created_at, started_at, completed_at
		FROM eval_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query eval runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []*EvalRun{}

	for rows.Next() {
		r, err := scanEvalRunRow(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Dequeue claims the oldest pending run using SELECT ... FOR UPDATE SKIP LOCKED
// so multiple worker processes can poll concurrently without double-processing.
// Returns (nil, nil) when no pending run is available.
func (s *EvalRunStore) Dequeue(ctx context.Context) (*EvalRun, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := `
		SELECT id, prompt_version_id, dataset_id, model_ids, assertions, status,
		       concurrency_limit, max_retries, total_tasks, completed_tasks, failed_tasks,
		       error_message, summary, created_at, started_at, completed_at
		FROM eval_runs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	run, err := scanEvalRun(tx.QueryRowContext(ctx, query, EvalRunStatusPending))
	if errors.Is(err, ErrEvalRunNotFound) {
		committed = true

		return nil, tx.Commit()
	}

	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE eval_runs SET status = $1, started_at = $2 WHERE id = $3`,
		EvalRunStatusRunning, now, run.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to mark run running: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dequeue: %w", err)
	}

	committed = true

	run.Status = EvalRunStatusRunning
	run.StartedAt = &now

	return run, nil
}

// Cancel transitions a run to canceled, allowed only from pending or running.
func (s *EvalRunStore) Cancel(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE eval_runs SET status = $1 WHERE id = $2 AND status IN ($3, $4)`,
		EvalRunStatusCanceled, id, EvalRunStatusPending, EvalRunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel eval run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, getErr := s.GetRun(ctx, id); getErr != nil {
			return getErr
		}

		return ErrEvalRunNotCancel
	}

	return nil
}

// StartProgress records the total task count once the fan-out executor has
// materialized the dataset-item x model cartesian product, so a caller
// polling the run mid-drain sees a non-zero denominator immediately.
func (s *EvalRunStore) StartProgress(ctx context.Context, id string, total int) error {
	if _, err := s.conn.ExecContext(ctx,
		`UPDATE eval_runs SET total_tasks = $1 WHERE id = $2`,
		total, id,
	); err != nil {
		return fmt.Errorf("failed to start eval run progress: %w", err)
	}

	return nil
}

// IncrementProgress atomically bumps completed_tasks or failed_tasks by one
// as each task reaches a terminal state, independent of when its result row
// is persisted.
func (s *EvalRunStore) IncrementProgress(ctx context.Context, id string, failed bool) error {
	column := "completed_tasks"
	if failed {
		column = "failed_tasks"
	}

	if _, err := s.conn.ExecContext(ctx,
		fmt.Sprintf(`UPDATE eval_runs SET %s = %s + 1 WHERE id = $1`, column, column),
		id,
	); err != nil {
		return fmt.Errorf("failed to increment eval run progress: %w", err)
	}

	return nil
}

// Complete writes the final summary and transitions the run to a terminal
// status. It refuses to overwrite a run already in a terminal state,
// preserving a cooperative cancellation written concurrently by Cancel.
// errMsg is persisted as error_message; pass nil for a run that completed
// without an infrastructure failure.
func (s *EvalRunStore) Complete(ctx context.Context, id, status string, summary *Summary, errMsg *string) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE eval_runs SET status = $1, summary = $2, error_message = $3, completed_at = $4
		 WHERE id = $5 AND status = $6`,
		status, summaryJSON, errMsg, time.Now().UTC(), id, EvalRunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to complete eval run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Info("eval run already left running state, skipping terminal write",
			slog.String("eval_run_id", id), slog.String("attempted_status", status))
	}

	return nil
}

func scanEvalRun(row *sql.Row) (*EvalRun, error) {
	r, err := scanEvalRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEvalRunNotFound
	}

	return r, err
}

func scanEvalRunRow(row rowScanner) (*EvalRun, error) {
	var (
		r            EvalRun
		modelIDsJSON []byte
		assertions   []byte
		summaryJSON  []byte
	)

	err := row.Scan(
		&r.ID, &r.PromptVersionID, &r.DatasetID, &modelIDsJSON, &assertions, &r.Status,
		&r.ConcurrencyLimit, &r.MaxRetries, &r.TotalTasks, &r.CompletedTasks, &r.FailedTasks,
		&r.ErrorMessage, &summaryJSON, &r.CreatedAt, &r.StartedAt, &r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(modelIDsJSON, &r.ModelIDs); err != nil {
		return nil, fmt.Errorf("failed to parse model_ids: %w", err)
	}

	r.Assertions = json.RawMessage(assertions)

	if len(summaryJSON) > 0 {
		var summary Summary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return nil, fmt.Errorf("failed to parse summary: %w", err)
		}

		r.Summary = &summary
	}

	return &r, nil
}
