package memory

import (
	"context"
	"sort"

	"storefront/internal/domain"
	"github.com/google/uuid"
)

type ProductRepository struct {
	s *Store
}

func (r *ProductRepository) List(_ context.Context) ([]domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]domain.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *ProductRepository) GetMany(_ context.Context, ids []string) (map[string]domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out[id] = *p
		}
	}
	return out, nil
}

// Upsert matches on Key like the postgres repository.
func (r *ProductRepository) Upsert(_ context.Context, product domain.Product) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.products {
		if existing.Key == product.Key {
			product.ID = existing.ID
			product.CreatedAt = existing.CreatedAt
			break
		}
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = r.s.now()
	}
	stored := product
	r.s.products[product.ID] = &stored
	return &product, nil
}
