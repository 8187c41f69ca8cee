// Package memory holds in-process implementations of the product, cart and
// order repositories. All three share one lock so an order commit sees and
// mutates stock and carts atomically.
package memory

import (
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository/order"
)

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	products map[string]*domain.Product
	carts    map[string]map[string]*memLine
	seq      uint64
	orders   map[string]*domain.Order
	byKey    map[string]string
	byNumber map[string]string
	fault    order.FaultInjector
}

type memLine struct {
	line domain.CartLine
	seq  uint64
}

type Option func(*Store)

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithFaultInjector installs a hook that can fail order commits before any
// state is changed.
func WithFaultInjector(fn order.FaultInjector) Option {
	return func(s *Store) { s.fault = fn }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		products: make(map[string]*domain.Product),
		carts:    make(map[string]map[string]*memLine),
		orders:   make(map[string]*domain.Order),
		byKey:    make(map[string]string),
		byNumber: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }
