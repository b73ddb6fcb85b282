package sharing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrTokenNotFound = errors.New("share token not found or expired")

// Share grants read access to a user's live location until ExpiresAt.
type Share struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store keeps share tokens. Implementations expire tokens on their own.
type Store interface {
	Create(ctx context.Context, userID int64) (Share, error)
	Resolve(ctx context.Context, token string) (Share, error)
	Revoke(ctx context.Context, token string) error
	Close() error
}

func newToken() string {
	return uuid.NewString()
}
