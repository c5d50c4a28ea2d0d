package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ShareTokenLength is the fixed length of a share token: base64 raw-url
// encoding of 16 random bytes produces exactly 22 characters, matching the
// Python original's secrets.token_urlsafe(16).
const ShareTokenLength = 22

// Sentinel errors for share-token storage operations.
var (
	ErrShareTokenNotFound = errors.New("share token not found")
	ErrShareTokenExpired  = errors.New("share token expired or revoked")
)

// ShareToken grants read-only access to one eval run's report.
type ShareToken struct {
	ID        string
	EvalRunID string
	Token     string
	ExpiresAt *time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// ShareTokenStore persists share tokens with PostgreSQL.
type ShareTokenStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewShareTokenStore creates a ShareTokenStore backed by conn.
func NewShareTokenStore(conn *Connection) *ShareTokenStore {
	return &ShareTokenStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: getEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// GenerateToken returns a 22-character URL-safe random token.
func GenerateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	if len(token) != ShareTokenLength {
		return "", fmt.Errorf("generated token has unexpected length %d", len(token))
	}

	return token, nil
}

// Issue creates and stores a new share token for an eval run.
func (s *ShareTokenStore) Issue(ctx context.Context, t *ShareToken) error {
	query := `
		INSERT INTO share_tokens (id, eval_run_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.conn.ExecContext(ctx, query, t.ID, t.EvalRunID, t.Token, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert share token: %w", err)
	}

	return nil
}

// Resolve looks up the eval run ID for a token, returning ErrShareTokenNotFound
// when absent and ErrShareTokenExpired when past expiry or revoked.
func (s *ShareTokenStore) Resolve(ctx context.Context, token string) (string, error) {
	query := `
		SELECT eval_run_id, expires_at, revoked_at
		FROM share_tokens
		WHERE token = $1
	`

	var (
		evalRunID string
		expiresAt *time.Time
		revokedAt *time.Time
	)

	err := s.conn.QueryRowContext(ctx, query, token).Scan(&evalRunID, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrShareTokenNotFound
	}

	if err != nil {
		return "", fmt.Errorf("failed to query share token: %w", err)
	}

	if revokedAt != nil {
		return "", ErrShareTokenExpired
	}

	if expiresAt != nil && time.Now().After(*expiresAt) {
		return "", ErrShareTokenExpired
	}

	return evalRunID, nil
}

// Revoke clears the token's validity by stamping revoked_at, for a given run.
func (s *ShareTokenStore) Revoke(ctx context.Context, evalRunID string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE share_tokens SET revoked_at = $1 WHERE eval_run_id = $2 AND revoked_at IS NULL`,
		time.Now().UTC(), evalRunID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke share token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrShareTokenNotFound
	}

	return nil
}
