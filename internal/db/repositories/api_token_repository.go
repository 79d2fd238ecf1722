// api_token_repository.go implements APITokenRepository. Only token hashes ever
// pass through this layer.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/runledger/runledger/internal/db/models"
)

// APITokenRepository handles database operations for project API tokens
type APITokenRepository struct {
	db *sql.DB
}

// NewAPITokenRepository creates a new API token repository
func NewAPITokenRepository(db *sql.DB) *APITokenRepository {
	return &APITokenRepository{db: db}
}

// Create inserts token and fills in its generated ID and CreatedAt.
// An existing hash is never overwritten; the insert fails on ConstraintTokenHash instead.
func (r *APITokenRepository) Create(ctx context.Context, token *models.APIToken) error {
	query := `
		INSERT INTO api_tokens (project_id, token_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, token.ProjectID, token.TokenHash).
		Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api token: %w", err)
	}

	return nil
}

// GetByHash retrieves the token with the given hash. Returns nil, nil when absent.
func (r *APITokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.APIToken, error) {
	query := `
		SELECT id, project_id, token_hash, created_at
		FROM api_tokens
		WHERE token_hash = $1
	`

	token := &models.APIToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.ProjectID,
		&token.TokenHash,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api token: %w", err)
	}

	return token, nil
}
