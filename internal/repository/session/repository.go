package session

import (
	"context"
	"time"
)

// Repository tracks anonymous session tokens that were minted by this store.
type Repository interface {
	Register(ctx context.Context, token string, ttl time.Duration) error
	// Active reports whether token is known and unexpired.
	Active(ctx context.Context, token string) (bool, error)
	// Touch extends an active token's lifetime.
	Touch(ctx context.Context, token string, ttl time.Duration) error
}
