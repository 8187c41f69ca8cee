package cartsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"storefront/internal/domain"
	"storefront/internal/logging"

	"go.uber.org/zap"
)

// LineState is the sync status of one local cart line.
type LineState int

const (
	Synced LineState = iota
	Pending
	RolledBack
)

func (s LineState) String() string {
	switch s {
	case Pending:
		return "pending"
	case RolledBack:
		return "rolled_back"
	default:
		return "synced"
	}
}

// FailureKind separates errors the shopper can act on from outages.
type FailureKind int

const (
	Business FailureKind = iota + 1
	Infrastructure
)

// Failure is returned by a mutation that the server rejected or that never
// reached it. The local line has already been reverted when it is returned.
type Failure struct {
	Kind      FailureKind
	ProductID string
	Message   string
	Err       error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Err }

// Line is the displayed state of one cart line.
type Line struct {
	ProductID  string
	Name       string
	PriceCents int64
	Image      string
	Stock      int
	Quantity   int
	Confirmed  int
	State      LineState
}

type cartAPI interface {
	Cart(ctx context.Context) ([]domain.CartItem, error)
	Add(ctx context.Context, productID string, quantity int) (*domain.CartItem, error)
	SetQuantity(ctx context.Context, productID string, quantity int) (*domain.CartItem, error)
	Remove(ctx context.Context, productID string) error
}

type lineState struct {
	confirmed *domain.CartItem
	display   int
	pending   int
	stale     bool
	state     LineState
}

func (l *lineState) confirmedQuantity() int {
	if l.confirmed == nil {
		return 0
	}
	return l.confirmed.Quantity
}

// Synchronizer keeps a local mirror of the cart. Mutations are applied to the
// mirror before the request is sent and reconciled with the server reply.
type Synchronizer struct {
	api    cartAPI
	logger *zap.Logger

	mu    sync.Mutex
	lines map[string]*lineState
	// gen counts local mutation events; touched holds the last one per
	// product so a refresh can skip lines that changed while it was reading.
	gen      uint64
	touched  map[string]uint64
	onChange func([]Line)
}

type Option func(*Synchronizer)

// OnChange registers fn to receive a snapshot after every local change.
func OnChange(fn func([]Line)) Option {
	return func(s *Synchronizer) { s.onChange = fn }
}

func New(api cartAPI, logger *zap.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		api:     api,
		logger:  logging.OrNop(logger).With(zap.String("component", "cartsync")),
		lines:   make(map[string]*lineState),
		touched: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh replaces the confirmed state with the server cart. Lines with
// requests in flight keep their displayed quantity, and lines mutated while
// the cart was being read keep their newer state.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	since := s.gen
	s.mu.Unlock()

	items, err := s.api.Cart(ctx)
	if err != nil {
		return classify("", err)
	}

	s.mu.Lock()
	seen := make(map[string]bool, len(items))
	for i := range items {
		item := items[i]
		seen[item.ProductID] = true
		if s.touched[item.ProductID] > since {
			continue
		}
		l, ok := s.lines[item.ProductID]
		if !ok {
			l = &lineState{}
			s.lines[item.ProductID] = l
		}
		l.confirmed = &item
		if l.pending == 0 {
			l.display = item.Quantity
			l.stale = false
			l.state = Synced
		}
	}
	for id, l := range s.lines {
		if seen[id] || s.touched[id] > since {
			continue
		}
		l.confirmed = nil
		if l.pending == 0 {
			delete(s.lines, id)
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// Add increases the line by quantity.
func (s *Synchronizer) Add(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return &Failure{Kind: Business, ProductID: productID, Message: "quantity must be positive"}
	}
	return s.mutate(ctx, productID,
		func(current int) int { return current + quantity },
		func(ctx context.Context) (*domain.CartItem, error) {
			return s.api.Add(ctx, productID, quantity)
		})
}

// SetQuantity sets the line to quantity; zero or less removes it.
func (s *Synchronizer) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity < 0 {
		quantity = 0
	}
	return s.mutate(ctx, productID,
		func(int) int { return quantity },
		func(ctx context.Context) (*domain.CartItem, error) {
			return s.api.SetQuantity(ctx, productID, quantity)
		})
}

func (s *Synchronizer) Remove(ctx context.Context, productID string) error {
	return s.mutate(ctx, productID,
		func(int) int { return 0 },
		func(ctx context.Context) (*domain.CartItem, error) {
			return nil, s.api.Remove(ctx, productID)
		})
}

// Discard drops the unsent local delta of a line so it shows the confirmed
// quantity again. Replies to requests already sent are still applied.
func (s *Synchronizer) Discard(productID string) {
	s.mu.Lock()
	l, ok := s.lines[productID]
	if ok {
		l.display = l.confirmedQuantity()
		if l.pending == 0 {
			l.state = Synced
			if l.confirmed == nil {
				delete(s.lines, productID)
			}
		}
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

// Snapshot lists displayed lines ordered by product id.
func (s *Synchronizer) Snapshot() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Synchronizer) snapshotLocked() []Line {
	out := make([]Line, 0, len(s.lines))
	for id, l := range s.lines {
		if l.display <= 0 {
			continue
		}
		line := Line{
			ProductID: id,
			Quantity:  l.display,
			Confirmed: l.confirmedQuantity(),
			State:     l.state,
		}
		if c := l.confirmed; c != nil {
			line.Name = c.Name
			line.PriceCents = c.PriceCents
			line.Image = c.Image
			line.Stock = c.Stock
		}
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (s *Synchronizer) mutate(
	ctx context.Context,
	productID string,
	apply func(current int) int,
	send func(ctx context.Context) (*domain.CartItem, error),
) error {
	s.mu.Lock()
	l, ok := s.lines[productID]
	if !ok {
		l = &lineState{}
		s.lines[productID] = l
	}
	l.display = apply(l.display)
	l.pending++
	l.state = Pending
	s.touch(productID)
	s.mu.Unlock()
	s.notify()

	item, err := send(ctx)

	s.mu.Lock()
	l.pending--
	s.touch(productID)
	refresh := false
	switch {
	case err != nil && l.pending == 0 && !l.stale:
		l.display = l.confirmedQuantity()
		l.state = RolledBack
	case err != nil:
		l.stale = true
		refresh = l.pending == 0
	case l.pending == 0 && !l.stale:
		l.confirmed = item
		l.display = l.confirmedQuantity()
		l.state = Synced
	default:
		l.confirmed = item
		l.stale = true
		refresh = l.pending == 0
	}
	if l.pending == 0 && l.confirmed == nil && l.display == 0 {
		delete(s.lines, productID)
	}
	s.mu.Unlock()

	if refresh {
		if rerr := s.Refresh(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("refresh after concurrent mutations failed", zap.String("product_id", productID), zap.Error(rerr))
			s.markSettled(productID)
		}
	}
	s.notify()

	if err != nil {
		f := classify(productID, err)
		s.logger.Debug("cart mutation failed", zap.String("product_id", productID), zap.Error(err))
		return f
	}
	return nil
}

func (s *Synchronizer) touch(productID string) {
	s.gen++
	s.touched[productID] = s.gen
}

// markSettled falls back to the confirmed quantity when a reconciling refresh
// could not reach the server.
func (s *Synchronizer) markSettled(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[productID]
	if !ok || l.pending > 0 {
		return
	}
	l.stale = false
	l.display = l.confirmedQuantity()
	l.state = RolledBack
}

func (s *Synchronizer) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Snapshot())
}

func classify(productID string, err error) *Failure {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return &Failure{Kind: Infrastructure, ProductID: productID, Message: "could not reach the store, please try again", Err: err}
	}
	switch apiErr.Status {
	case http.StatusConflict:
		msg := apiErr.Message
		if apiErr.Available != nil {
			msg = fmt.Sprintf("only %d in stock", *apiErr.Available)
		}
		return &Failure{Kind: Business, ProductID: productID, Message: msg, Err: err}
	case http.StatusNotFound:
		return &Failure{Kind: Business, ProductID: productID, Message: "product is no longer available", Err: err}
	case http.StatusBadRequest:
		return &Failure{Kind: Business, ProductID: productID, Message: apiErr.Message, Err: err}
	default:
		return &Failure{Kind: Infrastructure, ProductID: productID, Message: "could not reach the store, please try again", Err: err}
	}
}
