package cart

import (
	"context"

	"storefront/internal/domain"
)

// Repository persists cart lines. Implementations must serialise mutations of
// the same (owner, product) key and perform the stock check in the same
// critical section as the write.
type Repository interface {
	List(ctx context.Context, owner domain.CartOwner) ([]domain.CartItem, error)
	// AddLine increments (or inserts) the line by quantity.
	AddLine(ctx context.Context, owner domain.CartOwner, productID string, quantity int) (*domain.CartItem, error)
	// SetQuantity overwrites the line; quantity <= 0 deletes it and returns nil.
	SetQuantity(ctx context.Context, owner domain.CartOwner, productID string, quantity int) (*domain.CartItem, error)
	// RemoveLine reports whether a line existed.
	RemoveLine(ctx context.Context, owner domain.CartOwner, productID string) (bool, error)
	Clear(ctx context.Context, owner domain.CartOwner) error
}
