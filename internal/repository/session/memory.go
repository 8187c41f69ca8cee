package session

import (
	"context"
	"sync"
	"time"

	"storefront/internal/domain"
)

type memoryRepo struct {
	mu      sync.RWMutex
	now     func() time.Time
	expires map[string]time.Time
}

// NewMemory returns a process-local registry. now may be nil.
func NewMemory(now func() time.Time) Repository {
	if now == nil {
		now = time.Now
	}
	return &memoryRepo{now: now, expires: make(map[string]time.Time)}
}

func (r *memoryRepo) Register(_ context.Context, token string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exp, ok := r.expires[token]; ok && r.now().Before(exp) {
		return domain.ErrAlreadyExists
	}
	r.expires[token] = r.now().Add(ttl)
	return nil
}

func (r *memoryRepo) Active(_ context.Context, token string) (bool, error) {
	r.mu.RLock()
	exp, ok := r.expires[token]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !r.now().Before(exp) {
		r.mu.Lock()
		delete(r.expires, token)
		r.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (r *memoryRepo) Touch(_ context.Context, token string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.expires[token]; ok {
		r.expires[token] = r.now().Add(ttl)
	}
	return nil
}
