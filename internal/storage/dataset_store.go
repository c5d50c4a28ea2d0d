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

// Sentinel errors for dataset storage operations.
var (
	ErrDatasetNotFound     = errors.New("dataset not found")
	ErrDatasetItemNotFound = errors.New("dataset item not found")
)

// Dataset owns zero or more dataset items.
type Dataset struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// DatasetItem is one input/expected-output pair belonging to a dataset.
type DatasetItem struct {
	ID             string
	DatasetID      string
	InputVariables map[string]any
	Expected       map[string]any
	CreatedAt      time.Time
}

// DatasetStore persists datasets and their items with PostgreSQL.
type DatasetStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewDatasetStore creates a DatasetStore backed by conn.
func NewDatasetStore(conn *Connection) *DatasetStore {
	return &DatasetStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: getEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// CreateDataset inserts a new dataset.
func (s *DatasetStore) CreateDataset(ctx context.Context, d *Dataset) error {
	query := `INSERT INTO datasets (id, name, created_at) VALUES ($1, $2, $3)`

	if _, err := s.conn.ExecContext(ctx, query, d.ID, d.Name, d.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert dataset: %w", err)
	}

	return nil
}

// GetDataset fetches a dataset by ID.
func (s *DatasetStore) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	query := `SELECT id, name, created_at FROM datasets WHERE id = $1`

	var d Dataset

	err := s.conn.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDatasetNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query dataset: %w", err)
	}

	return &d, nil
}

// ListDatasets returns datasets ordered by creation time, newest first.
func (s *DatasetStore) ListDatasets(ctx context.Context, limit, offset int) ([]*Dataset, error) {
	query := `SELECT id, name, created_at FROM datasets ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	datasets := []*Dataset{}

	for rows.Next() {
		var d Dataset
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}

		datasets = append(datasets, &d)
	}

	return datasets, rows.Err()
}

// AddItem inserts a new dataset item.
func (s *DatasetStore) AddItem(ctx context.Context, item *DatasetItem) error {
	inputJSON, err := json.Marshal(item.InputVariables)
	if err != nil {
		return fmt.Errorf("failed to marshal input_variables: %w", err)
	}

	expectedJSON, err := json.Marshal(item.Expected)
	if err != nil {
		return fmt.Errorf("failed to marshal expected: %w", err)
	}

	query := `
		INSERT INTO dataset_items (id, dataset_id, input_variables, expected, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.conn.ExecContext(ctx, query, item.ID, item.DatasetID, inputJSON, expectedJSON, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dataset item: %w", err)
	}

	return nil
}

// ListItems returns every item of a dataset, oldest first, using the
// dataset_id index.
func (s *DatasetStore) ListItems(ctx context.Context, datasetID string) ([]*DatasetItem, error) {
	query := `
		SELECT id, dataset_id, input_variables, expected, created_at
		FROM dataset_items
		WHERE dataset_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []*DatasetItem{}

	for rows.Next() {
		item, err := scanDatasetItem(rows)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, rows.Err()
}

func scanDatasetItem(row rowScanner) (*DatasetItem, error) {
	var (
		item       DatasetItem
		inputJSON  []byte
		expectJSON []byte
	)

	if err := row.Scan(&item.ID, &item.DatasetID, &inputJSON, &expectJSON, &item.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan dataset item: %w", err)
	}

	if err := json.Unmarshal(inputJSON, &item.InputVariables); err != nil {
		return nil, fmt.Errorf("failed to parse input_variables: %w", err)
	}

	if err := json.Unmarshal(expectJSON, &item.Expected); err != nil {
		return nil, fmt.Errorf("failed to parse expected: %w", err)
	}

	return &item, nil
}
