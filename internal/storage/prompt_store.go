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

	"github.com/lib/pq"
)

// Sentinel errors for prompt and prompt-version storage operations.
var (
	ErrPromptNotFound        = errors.New("prompt not found")
	ErrPromptVersionNotFound = errors.New("prompt version not found")
	ErrInvalidLabel          = errors.New("label must be one of: production, beta, alpha")
)

var validLabels = map[string]bool{"production": true, "beta": true, "alpha": true}

// Prompt is a named container for immutable versions.
type Prompt struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// PromptVersion is one immutable, monotonically-numbered revision of a prompt.
// Labels is a set: a version may carry more than one of production/beta/alpha
// at once, though each label belongs to at most one version per prompt.
type PromptVersion struct {
	ID            string
	PromptID      string
	VersionNumber int
	TemplateText  string
	Variables     []string
	Labels        []string
	CreatedAt     time.Time
}

// PromptStore persists prompts and their versions with PostgreSQL.
type PromptStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPromptStore creates a PromptStore backed by conn.
func NewPromptStore(conn *Connection) *PromptStore {
	return &PromptStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: getEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// CreatePrompt inserts a new prompt.
func (s *PromptStore) CreatePrompt(ctx context.Context, p *Prompt) error {
	query := `INSERT INTO prompts (id, name, created_at) VALUES ($1, $2, $3)`

	if _, err := s.conn.ExecContext(ctx, query, p.ID, p.Name, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert prompt: %w", err)
	}

	return nil
}

// GetPrompt fetches a prompt by ID.
func (s *PromptStore) GetPrompt(ctx context.Context, id string) (*Prompt, error) {
	query := `SELECT id, name, created_at FROM prompts WHERE id = $1`

	var p Prompt

	err := s.conn.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPromptNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query prompt: %w", err)
	}

	return &p, nil
}

// ListPrompts returns prompts ordered by creation time, newest first.
func (s *PromptStore) ListPrompts(ctx context.Context, limit, offset int) ([]*Prompt, error) {
	query := `SELECT id, name, created_at FROM prompts ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	prompts := []*Prompt{}

	for rows.Next() {
		var p Prompt
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}

		prompts = append(prompts, &p)
	}

	return prompts, rows.Err()
}

// CreateVersion inserts a new prompt version with the next monotonic version_number
// for the prompt, computed inside the same transaction to avoid gaps and races.
func (s *PromptStore) CreateVersion(ctx context.Context, v *PromptVersion) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the parent prompt row first: FOR UPDATE cannot be combined with an
	// aggregate, so the lock and the MAX() computation are two statements.
	if _, err := tx.ExecContext(ctx, `SELECT id FROM prompts WHERE id = $1 FOR UPDATE`, v.PromptID); err != nil {
		return fmt.Errorf("failed to lock prompt: %w", err)
	}

	var maxVersion sql.NullInt64

	err = tx.QueryRowContext(ctx,
		`SELECT MAX(version_number) FROM prompt_versions WHERE prompt_id = $1`,
		v.PromptID,
	).Scan(&maxVersion)
	if err != nil {
		return fmt.Errorf("failed to compute next version number: %w", err)
	}

	v.VersionNumber = int(maxVersion.Int64) + 1

	variablesJSON, err := json.Marshal(v.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	// A nil slice would bind as NULL, which the NOT NULL labels column rejects.
	labels := v.Labels
	if labels == nil {
		labels = []string{}
	}

	query := `
		INSERT INTO prompt_versions (id, prompt_id, version_number, template_text, variables, labels, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = tx.ExecContext(ctx, query,
		v.ID, v.PromptID, v.VersionNumber, v.TemplateText, variablesJSON, pq.Array(labels), v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prompt version: %w", err)
	}

	return tx.Commit()
}

// GetVersion fetches one version of a prompt by version number.
func (s *PromptStore) GetVersion(ctx context.Context, promptID string, versionNumber int) (*PromptVersion, error) {
	query := `
		SELECT id, prompt_id, version_number, template_text, variables, labels, created_at
		FROM prompt_versions
		WHERE prompt_id = $1 AND version_number = $2
	`

	return s.scanVersion(s.conn.QueryRowContext(ctx, query, promptID, versionNumber))
}

// GetVersionByID fetches a prompt version by its own ID, independent of the owning prompt.
func (s *PromptStore) GetVersionByID(ctx context.Context, id string) (*PromptVersion, error) {
	query := `
		SELECT id, prompt_id, version_number, template_text, variables, labels, created_at
		FROM prompt_versions
		WHERE id = $1
	`

	return s.scanVersion(s.conn.QueryRowContext(ctx, query, id))
}

// ListVersions returns every version of a prompt ordered oldest-first.
func (s *PromptStore) ListVersions(ctx context.Context, promptID string) ([]*PromptVersion, error) {
	query := `
		SELECT id, prompt_id, version_number, template_text, variables, labels, created_at
		FROM prompt_versions
		WHERE prompt_id = $1
		ORDER BY version_number ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	versions := []*PromptVersion{}

	for rows.Next() {
		v, err := scanVersionRow(rows)
		if err != nil {
			return nil, err
		}

		versions = append(versions, v)
	}

	return versions, rows.Err()
}

// AddLabel adds label to versionNumber's label set, first stripping it from
// whichever version previously held it on the same prompt. Runs inside a
// transaction so the per-label partial unique index is never violated
// mid-flight. Adding a label a version already holds is a no-op.
func (s *PromptStore) AddLabel(ctx context.Context, promptID string, versionNumber int, label string) error {
	if !validLabels[label] {
		return ErrInvalidLabel
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_versions SET labels = array_remove(labels, $1) WHERE prompt_id = $2 AND $1 = ANY(labels)`,
		label, promptID,
	); err != nil {
		return fmt.Errorf("failed to clear existing label: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE prompt_versions SET labels = array_append(labels, $1)
		 WHERE prompt_id = $2 AND version_number = $3`,
		label, promptID, versionNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to add label: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrPromptVersionNotFound
	}

	return tx.Commit()
}

// RemoveLabel removes label from versionNumber's label set. Removing a label
// the version does not hold is a no-op, not an error.
func (s *PromptStore) RemoveLabel(ctx context.Context, promptID string, versionNumber int, label string) error {
	if !validLabels[label] {
		return ErrInvalidLabel
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE prompt_versions SET labels = array_remove(labels, $1)
		 WHERE prompt_id = $2 AND version_number = $3`,
		label, promptID, versionNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to remove label: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrPromptVersionNotFound
	}

	return nil
}

func (s *PromptStore) scanVersion(row *sql.Row) (*PromptVersion, error) {
	var (
		v             PromptVersion
		variablesJSON []byte
	)

	err := row.Scan(&v.ID, &v.PromptID, &v.VersionNumber, &v.TemplateText, &variablesJSON, pq.Array(&v.Labels), &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPromptVersionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query prompt version: %w", err)
	}

	if err := json.Unmarshal(variablesJSON, &v.Variables); err != nil {
		return nil, fmt.Errorf("failed to parse variables: %w", err)
	}

	return &v, nil
}

// rowScanner abstracts over *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersionRow(row rowScanner) (*PromptVersion, error) {
	var (
		v             PromptVersion
		variablesJSON []byte
	)

	if err := row.Scan(&v.ID, &v.PromptID, &v.VersionNumber, &v.TemplateText, &variablesJSON, pq.Array(&v.Labels), &v.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan prompt version: %w", err)
	}

	if err := json.Unmarshal(variablesJSON, &v.Variables); err != nil {
		return nil, fmt.Errorf("failed to parse variables: %w", err)
	}

	return &v, nil
}
