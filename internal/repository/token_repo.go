package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/productbazar/api/internal/model"
)

// TokenRepo persists refresh tokens. Tokens are revoked, never deleted,
// preserving the audit trail of sessions.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const tokenCols = "id, user_id, token_hash, created_by_ip, user_agent, provider, expires_at, revoked_at, reason, created_at"

func scanToken(row *sql.Row) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedByIP, &t.UserAgent,
		&t.Provider, &t.ExpiresAt, &t.RevokedAt, &t.Reason, &t.CreatedAt)
	return t, notFound(err)
}

// Store inserts a refresh token row (hash only, never the raw token).
func (r *TokenRepo) Store(ctx context.Context, t *model.RefreshToken) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, user_id, token_hash, created_by_ip, user_agent, provider, expires_at) VALUES (?,?,?,?,?,?,?)",
		t.ID, t.UserID, t.TokenHash, t.CreatedByIP, t.UserAgent, t.Provider, t.ExpiresAt)
	return err
}

// GetByHash fetches a token row by its hash regardless of state; callers
// check IsActive.
func (r *TokenRepo) GetByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	return scanToken(r.DB.QueryRowContext(ctx,
		"SELECT "+tokenCols+" FROM refresh_tokens WHERE token_hash=? LIMIT 1", tokenHash))
}

// GetByID fetches a token row by its UUID.
func (r *TokenRepo) GetByID(ctx context.Context, id string) (model.RefreshToken, error) {
	return scanToken(r.DB.QueryRowContext(ctx,
		"SELECT "+tokenCols+" FROM refresh_tokens WHERE id=? LIMIT 1", id))
}

// RevokeByID marks one token revoked with a reason.
func (r *TokenRepo) RevokeByID(ctx context.Context, id, reason string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=?, reason=? WHERE id=? AND revoked_at IS NULL",
		at, reason, id)
	return err
}

// RevokeByHash marks one token revoked by hash (rotation path).
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash, reason string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=?, reason=? WHERE token_hash=? AND revoked_at IS NULL",
		at, reason, tokenHash)
	return err
}

// RevokeAllExcept revokes every active token of the user except the one
// identified by keepID ("revoke all other sessions").
func (r *TokenRepo) RevokeAllExcept(ctx context.Context, userID uint64, keepID, reason string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=?, reason=? WHERE user_id=? AND id<>? AND revoked_at IS NULL",
		at, reason, userID, keepID)
	return err
}
