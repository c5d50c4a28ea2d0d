package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// EvalResult is one (eval_run, dataset_item, model_id) grading outcome.
type EvalResult struct {
	ID                string
	EvalRunID         string
	DatasetItemID     string
	ModelID           string
	RenderedPrompt    string
	RawResponse       *string
	ReasoningContent  *string
	Assertions        json.RawMessage // []assert.Result
	Passed            bool
	LatencyMs         int64
	TokenUsage        json.RawMessage // invoker.TokenUsage
	CostUSD           *float64
	Error             *string
	Attempt           int
	CreatedAt         time.Time
}

// EvalResultStore persists per-task eval results.
type EvalResultStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewEvalResultStore creates an EvalResultStore backed by conn.
func NewEvalResultStore(conn *Connection) *EvalResultStore {
	return &EvalResultStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: getEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// Insert writes one result row. Relies on the unique (eval_run_id,
// dataset_item_id, model_id) index to enforce result uniqueness.
func (s *EvalResultStore) Insert(ctx context.Context, r *EvalResult) error {
	assertions := r.Assertions
	if assertions == nil {
		assertions = json.RawMessage("[]")
	}

	query := `
		INSERT INTO eval_results (
			id, eval_run_id, dataset_item_id, model_id, rendered_prompt, raw_response,
			reasoning_content, assertions, passed, latency_ms, token_usage, cost_usd,
			error, attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.conn.ExecContext(ctx, query,
		r.ID, r.EvalRunID, r.DatasetItemID, r.ModelID, r.RenderedPrompt, r.RawResponse,
		r.ReasoningContent, []byte(assertions), r.Passed, r.LatencyMs, []byte(r.TokenUsage), r.CostUSD,
		r.Error, r.Attempt, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert eval result: %w", err)
	}

	return nil
}

// InsertBatch writes multiple result rows in a single transaction, used by
// the fan-out executor's end-of-drain persistence step.
func (s *EvalResultStore) InsertBatch(ctx context.Context, results []*EvalResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO eval_results (
			id, eval_run_id, dataset_item_id, model_id, rendered_prompt, raw_response,
			reasoning_content, assertions, passed, latency_ms, token_usage, cost_usd,
			error, attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	for _, r := range results {
		assertions := r.Assertions
		if assertions == nil {
			assertions = json.RawMessage("[]")
		}

		if _, err := tx.ExecContext(ctx, query,
			r.ID, r.EvalRunID, r.DatasetItemID, r.ModelID, r.RenderedPrompt, r.RawResponse,
			r.ReasoningContent, []byte(assertions), r.Passed, r.LatencyMs, []byte(r.TokenUsage), r.CostUSD,
			r.Error, r.Attempt, r.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert eval result %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// ListByRun returns results for a run, optionally filtered by model_id and
// passed, ordered by creation time.
func (s *EvalResultStore) ListByRun(
	ctx context.Context,
	runID string,
	modelID *string,
	passed *bool,
	limit, offset int,
) ([]*EvalResult, error) {
	query := `
		SELECT id, eval_run_id, dataset_item_id, model_id, rendered_prompt, raw_response,
		       reasoning_content, assertions, passed, latency_ms, token_usage, cost_usd,
		       error, attempt, created_at
		FROM eval_results
		WHERE eval_run_id = $1
		  AND ($2::text IS NULL OR model_id = $2)
		  AND ($3::boolean IS NULL OR passed = $3)
		ORDER BY created_at ASC
		LIMIT $4 OFFSET $5
	`

	rows, err := s.conn.QueryContext(ctx, query, runID, modelID, passed, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query eval results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []*EvalResult{}

	for rows.Next() {
		var r EvalResult
		if err := rows.Scan(
			&r.ID, &r.EvalRunID, &r.DatasetItemID, &r.ModelID, &r.RenderedPrompt, &r.RawResponse,
			&r.ReasoningContent, &r.Assertions, &r.Passed, &r.LatencyMs, &r.TokenUsage, &r.CostUSD,
			&r.Error, &r.Attempt, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan eval result: %w", err)
		}

		results = append(results, &r)
	}

	return results, rows.Err()
}
