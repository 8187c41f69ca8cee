package order

import (
	"context"

	"storefront/internal/domain"
)

// Repository persists committed orders.
type Repository interface {
	// Commit inserts the order and its lines, decrements stock for every line
	// and clears the owner's cart as a single atomic unit. A shortfall on any
	// line yields *domain.OutOfStockError and leaves nothing behind. A reused
	// idempotency key yields domain.ErrAlreadyExists.
	Commit(ctx context.Context, order *domain.Order) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
}

// FaultInjector is called between the order insert and the stock decrement.
// A non-nil error aborts the commit.
type FaultInjector func(ctx context.Context, order *domain.Order) error
