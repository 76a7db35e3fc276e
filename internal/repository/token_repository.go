package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
)

// TokenRepository stores token state in postgres (TOKEN_STORE=postgres).
type TokenRepository struct {
	db     *sqlx.DB
	sealer TokenSealer
}

// NewTokenRepository creates a TokenRepository. sealer may be nil to store tokens as-is.
func NewTokenRepository(db *sqlx.DB, sealer TokenSealer) *TokenRepository {
	return &TokenRepository{db: db, sealer: sealer}
}

// Get returns the state for userID or ErrTokenNotFound.
func (r *TokenRepository) Get(ctx context.Context, userID string) (*models.TokenState, error) {
	const query = `SELECT user_id, access_token, refresh_token, expires_at, updated_at FROM user_tokens WHERE user_id = $1`
	var state models.TokenState
	if err := r.db.GetContext(ctx, &state, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("get token state: %w", err)
	}
	if err := openState(r.sealer, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Set upserts all three token fields in one statement.
func (r *TokenRepository) Set(ctx context.Context, state *models.TokenState) error {
	sealed, err := sealState(r.sealer, state)
	if err != nil {
		return err
	}
	sealed.ExpiresAt = sealed.ExpiresAt.UTC()
	sealed.UpdatedAt = time.Now().UTC()

	const query = `INSERT INTO user_tokens (user_id, access_token, refresh_token, expires_at, updated_at)
VALUES (:user_id, :access_token, :refresh_token, :expires_at, :updated_at)
ON CONFLICT (user_id) DO UPDATE SET access_token = EXCLUDED.access_token, refresh_token = EXCLUDED.refresh_token,
expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, sealed); err != nil {
		return fmt.Errorf("set token state: %w", err)
	}
	return nil
}

// Clear removes the state for userID.
func (r *TokenRepository) Clear(ctx context.Context, userID string) error {
	const query = `DELETE FROM user_tokens WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("clear token state: %w", err)
	}
	return nil
}
