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

// ErrPlaygroundRunNotFound is returned when a playground run ID has no match.
var ErrPlaygroundRunNotFound = errors.New("playground run not found")

// PlaygroundRun is an ad-hoc, unscheduled fan-out over one or more prompt
// versions and models, recorded purely as an audit trail; it has no
// lifecycle status and is never dequeued.
type PlaygroundRun struct {
	ID               string
	PromptVersionIDs []string
	ModelIDs         []string
	InputVariables   map[string]any
	Results          json.RawMessage // []playground.Result
	CreatedAt        time.Time
}

// PlaygroundStore persists playground run history with PostgreSQL.
type PlaygroundStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPlaygroundStore creates a PlaygroundStore backed by conn.
func NewPlaygroundStore(conn *Connection) *PlaygroundStore {
	return &PlaygroundStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: getEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// RecordRun inserts a completed playground run. Playground runs are
// write-once: there is no update path, only creation and lookup.
func (s *PlaygroundStore) RecordRun(ctx context.Context, r *PlaygroundRun) error {
	promptVersionIDsJSON, err := json.Marshal(r.PromptVersionIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal prompt_version_ids: %w", err)
	}

	modelIDsJSON, err := json.Marshal(r.ModelIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal model_ids: %w", err)
	}

	inputJSON, err := json.Marshal(r.InputVariables)
	if err != nil {
		return fmt.Errorf("failed to marshal input_variables: %w", err)
	}

	results := r.Results
	if results == nil {
		results = json.RawMessage("[]")
	}

	query := `
		INSERT INTO playground_runs (id, prompt_version_ids, model_ids, input_variables, results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.conn.ExecContext(ctx, query,
		r.ID, promptVersionIDsJSON, modelIDsJSON, inputJSON, []byte(results), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert playground run: %w", err)
	}

	return nil
}

// GetRun fetches a playground run by ID.
func (s *PlaygroundStore) GetRun(ctx context.Context, id string) (*PlaygroundRun, error) {
	query := `
		SELECT id, prompt_version_ids, model_ids, input_variables, results, created_at
		FROM playground_runs
		WHERE id = $1
	`

	return scanPlaygroundRun(s.conn.QueryRowContext(ctx, query, id))
}

// ListRuns returns playground runs ordered by creation time, newest first.
func (s *PlaygroundStore) ListRuns(ctx context.Context, limit, offset int) ([]*PlaygroundRun, error) {
	query := `
		SELECT id, prompt_version_ids, model_ids, input_variables, results, created_at
		FROM playground_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query playground runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []*PlaygroundRun{}

	for rows.Next() {
		r, err := scanPlaygroundRunRow(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

func scanPlaygroundRun(row *sql.Row) (*PlaygroundRun, error) {
	r, err := scanPlaygroundRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlaygroundRunNotFound
	}

	return r, err
}

func scanPlaygroundRunRow(row rowScanner) (*PlaygroundRun, error) {
	var (
		r                    PlaygroundRun
		promptVersionIDsJSON []byte
		modelIDsJSON         []byte
		inputJSON            []byte
	)

	err := row.Scan(&r.ID, &promptVersionIDsJSON, &modelIDsJSON, &inputJSON, &r.Results, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(promptVersionIDsJSON, &r.PromptVersionIDs); err != nil {
		return nil, fmt.Errorf("failed to parse prompt_version_ids: %w", err)
	}

	if err := json.Unmarshal(modelIDsJSON, &r.ModelIDs); err != nil {
		return nil, fmt.Errorf("failed to parse model_ids: %w", err)
	}

	if err := json.Unmarshal(inputJSON, &r.InputVariables); err != nil {
		return nil, fmt.Errorf("failed to parse input_variables: %w", err)
	}

	return &r, nil
}
