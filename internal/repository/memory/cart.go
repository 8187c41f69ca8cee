package memory

import (
	"context"
	"sort"

	"storefront/internal/domain"
)

type CartRepository struct {
	s *Store
}

func (r *CartRepository) List(_ context.Context, owner domain.CartOwner) ([]domain.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lines := make([]*memLine, 0, len(r.s.carts[owner.Key()]))
	for _, l := range r.s.carts[owner.Key()] {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].seq < lines[j].seq })

	items := make([]domain.CartItem, 0, len(lines))
	for _, l := range lines {
		p, ok := r.s.products[l.line.ProductID]
		if !ok {
			continue
		}
		items = append(items, domain.ItemFromProduct(*p, l.line.Quantity))
	}
	return items, nil
}

func (r *CartRepository) AddLine(_ context.Context, owner domain.CartOwner, productID string, quantity int) (*domain.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	existing := r.s.line(owner, productID)
	held := 0
	if existing != nil {
		held = existing.line.Quantity
	}
	if quantity > p.Stock-held {
		return nil, &domain.InsufficientStockError{ProductID: productID, Requested: domain.AddQuantities(held, quantity), Available: p.Stock}
	}
	newQty := held + quantity

	now := r.s.now()
	if existing == nil {
		r.s.seq++
		existing = &memLine{
			line: domain.CartLine{Owner: owner, ProductID: productID, CreatedAt: now},
			seq:  r.s.seq,
		}
		if r.s.carts[owner.Key()] == nil {
			r.s.carts[owner.Key()] = make(map[string]*memLine)
		}
		r.s.carts[owner.Key()][productID] = existing
	}
	existing.line.Quantity = newQty
	existing.line.UpdatedAt = now

	item := domain.ItemFromProduct(*p, newQty)
	return &item, nil
}

func (r *CartRepository) SetQuantity(_ context.Context, owner domain.CartOwner, productID string, quantity int) (*domain.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing := r.s.line(owner, productID)
	if existing == nil {
		return nil, domain.ErrNotFound
	}
	if quantity <= 0 {
		delete(r.s.carts[owner.Key()], productID)
		return nil, nil
	}
	p, ok := r.s.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if quantity > p.Stock {
		return nil, &domain.InsufficientStockError{ProductID: productID, Requested: quantity, Available: p.Stock}
	}
	existing.line.Quantity = quantity
	existing.line.UpdatedAt = r.s.now()

	item := domain.ItemFromProduct(*p, quantity)
	return &item, nil
}

func (r *CartRepository) RemoveLine(_ context.Context, owner domain.CartOwner, productID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.line(owner, productID) == nil {
		return false, nil
	}
	delete(r.s.carts[owner.Key()], productID)
	return true, nil
}

func (r *CartRepository) Clear(_ context.Context, owner domain.CartOwner) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.carts, owner.Key())
	return nil
}

// line must be called with mu held.
func (s *Store) line(owner domain.CartOwner, productID string) *memLine {
	lines, ok := s.carts[owner.Key()]
	if !ok {
		return nil
	}
	return lines[productID]
}
