package memory

import (
	"context"
	"sort"

	"storefront/internal/domain"
)

type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Commit(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.byKey[o.IdempotencyKey]; exists {
		return nil, domain.ErrAlreadyExists
	}
	if _, exists := r.s.byNumber[o.Number]; exists {
		return nil, domain.ErrAlreadyExists
	}
	requested, err := o.StockDemand()
	if err != nil {
		return nil, err
	}
	if r.s.fault != nil {
		if err := r.s.fault(ctx, o); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var shortfalls []domain.Shortfall
	for _, id := range ids {
		available := 0
		if p, ok := r.s.products[id]; ok {
			available = p.Stock
		}
		if requested[id] > available {
			shortfalls = append(shortfalls, domain.Shortfall{ProductID: id, Requested: requested[id], Available: available})
		}
	}
	if len(shortfalls) > 0 {
		return nil, &domain.OutOfStockError{Lines: shortfalls}
	}

	for id, qty := range requested {
		r.s.products[id].Stock -= qty
	}
	delete(r.s.carts, o.Owner.Key())

	o.CreatedAt = r.s.now()
	r.s.orders[o.ID] = cloneOrder(o)
	r.s.byKey[o.IdempotencyKey] = o.ID
	r.s.byNumber[o.Number] = o.ID
	return cloneOrder(o), nil
}

func (r *OrderRepository) GetByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.orderByID(r.s.byKey[key])
}

func (r *OrderRepository) GetByNumber(_ context.Context, number string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.orderByID(r.s.byNumber[number])
}

func (s *Store) orderByID(id string) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(o), nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	clone := *o
	clone.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return &clone
}
