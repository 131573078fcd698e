// Package refreshtoken defines stored refresh tokens. Only a hash of the
// token is ever persisted. A user may hold many live tokens, one per
// signed-in device.
package refreshtoken

import (
	"context"
	"time"

	"github.com/xraph/bastion/id"
)

// Token is the stored form of an issued refresh token.
type Token struct {
	ID        id.RefreshTokenID `json:"id" db:"id"`
	UserID    id.UserID         `json:"user_id" db:"user_id"`
	TokenHash string            `json:"-" db:"token_hash"`
	ExpiresAt time.Time         `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Store defines persistence operations for refresh tokens.
type Store interface {
	CreateRefreshToken(ctx context.Context, t *Token) error

	// GetRefreshToken finds a user's token by hash, expired or not.
	GetRefreshToken(ctx context.Context, userID id.UserID, tokenHash string) (*Token, error)

	// ReplaceRefreshToken deletes the token with oldHash and inserts next
	// as one step. If oldHash is not stored it fails with store.ErrNotFound
	// and inserts nothing.
	ReplaceRefreshToken(ctx context.Context, userID id.UserID, oldHash string, next *Token) error

	// RevokeRefreshToken deletes one token. Revoking a missing token is a no-op.
	RevokeRefreshToken(ctx context.Context, userID id.UserID, tokenHash string) error

	// RevokeUserRefreshTokens deletes every token of the user.
	RevokeUserRefreshTokens(ctx context.Context, userID id.UserID) error

	// ListActiveRefreshTokens returns the user's tokens still valid at now.
	ListActiveRefreshTokens(ctx context.Context, userID id.UserID, now time.Time) ([]*Token, error)

	// DeleteExpiredRefreshTokens removes tokens expired at now and returns
	// how many were removed.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}
