package cartsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"storefront/internal/domain"
)

type stubAPI struct {
	mu        sync.Mutex
	cart      []domain.CartItem
	cartCalls int
	// cartRead runs after the cart is copied and before it is returned.
	cartRead func()

	add    func(ctx context.Context, productID string, quantity int) (*domain.CartItem, error)
	set    func(ctx context.Context, productID string, quantity int) (*domain.CartItem, error)
	remove func(ctx context.Context, productID string) error
}

func (s *stubAPI) setCart(items ...domain.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = items
}

func (s *stubAPI) Cart(context.Context) ([]domain.CartItem, error) {
	s.mu.Lock()
	s.cartCalls++
	items := append([]domain.CartItem(nil), s.cart...)
	read := s.cartRead
	s.cartRead = nil
	s.mu.Unlock()
	if read != nil {
		read()
	}
	return items, nil
}

// holdNextCart makes the next Cart call read the current cart and then wait
// for release.
func (s *stubAPI) holdNextCart() (reading, release chan struct{}) {
	reading = make(chan struct{})
	release = make(chan struct{})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartRead = func() {
		close(reading)
		<-release
	}
	return reading, release
}

func (s *stubAPI) Add(ctx context.Context, productID string, quantity int) (*domain.CartItem, error) {
	return s.add(ctx, productID, quantity)
}

func (s *stubAPI) SetQuantity(ctx context.Context, productID string, quantity int) (*domain.CartItem, error) {
	return s.set(ctx, productID, quantity)
}

func (s *stubAPI) Remove(ctx context.Context, productID string) error {
	return s.remove(ctx, productID)
}

func (s *stubAPI) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartCalls
}

func item(id string, qty int) domain.CartItem {
	return domain.CartItem{ProductID: id, Name: "Product " + id, PriceCents: 450000, Quantity: qty, Stock: 5}
}

func intPtr(v int) *int { return &v }

func newSynced(t *testing.T, api *stubAPI, items ...domain.CartItem) *Synchronizer {
	t.Helper()
	api.setCart(items...)
	s := New(api, nil)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return s
}

func onlyLine(t *testing.T, s *Synchronizer) Line {
	t.Helper()
	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected one line, got %+v", snap)
	}
	return snap[0]
}

func TestAddAppliesLocallyBeforeServerConfirms(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &stubAPI{}
	api.add = func(_ context.Context, id string, q int) (*domain.CartItem, error) {
		close(started)
		<-release
		it := item(id, q)
		return &it, nil
	}
	s := New(api, nil)

	errc := make(chan error, 1)
	go func() { errc <- s.Add(context.Background(), "42", 3) }()
	<-started

	line := onlyLine(t, s)
	if line.Quantity != 3 || line.Confirmed != 0 || line.State != Pending {
		t.Fatalf("unexpected pending line %+v", line)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("add: %v", err)
	}
	line = onlyLine(t, s)
	if line.Quantity != 3 || line.Confirmed != 3 || line.State != Synced || line.Name != "Product 42" {
		t.Fatalf("unexpected synced line %+v", line)
	}
}

func TestAddConflictRollsBackToConfirmed(t *testing.T) {
	api := &stubAPI{}
	api.add = func(context.Context, string, int) (*domain.CartItem, error) {
		return nil, &APIError{Status: 409, Message: "insufficient stock", Requested: intPtr(6), Available: intPtr(5)}
	}
	s := newSynced(t, api, item("42", 3))

	err := s.Add(context.Background(), "42", 3)
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected failure, got %v", err)
	}
	if f.Kind != Business || f.Message != "only 5 in stock" || f.ProductID != "42" {
		t.Fatalf("unexpected failure %+v", f)
	}
	line := onlyLine(t, s)
	if line.Quantity != 3 || line.State != RolledBack {
		t.Fatalf("expected rollback to 3, got %+v", line)
	}
}

func TestTransportErrorIsInfrastructureFailure(t *testing.T) {
	api := &stubAPI{}
	api.add = func(context.Context, string, int) (*domain.CartItem, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	s := New(api, nil)

	err := s.Add(context.Background(), "7", 1)
	var f *Failure
	if !errors.As(err, &f) || f.Kind != Infrastructure {
		t.Fatalf("expected infrastructure failure, got %v", err)
	}
	if snap := s.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected unconfirmed line to disappear, got %+v", snap)
	}
}

func TestOverlappingMutationsReconcileWithServer(t *testing.T) {
	type reply struct {
		release chan struct{}
		item    *domain.CartItem
		err     error
	}
	confirmed := item("42", 2)
	replies := []*reply{
		{release: make(chan struct{}), err: &APIError{Status: 409, Message: "insufficient stock", Available: intPtr(2)}},
		{release: make(chan struct{}), item: &confirmed},
	}
	var next atomic.Int32
	started := make(chan struct{}, 2)

	api := &stubAPI{}
	api.add = func(context.Context, string, int) (*domain.CartItem, error) {
		r := replies[next.Add(1)-1]
		started <- struct{}{}
		<-r.release
		return r.item, r.err
	}
	s := newSynced(t, api, item("42", 1))

	errc1 := make(chan error, 1)
	go func() { errc1 <- s.Add(context.Background(), "42", 1) }()
	<-started
	errc2 := make(chan error, 1)
	go func() { errc2 <- s.Add(context.Background(), "42", 1) }()
	<-started

	if line := onlyLine(t, s); line.Quantity != 3 || line.State != Pending {
		t.Fatalf("expected both deltas applied, got %+v", line)
	}

	close(replies[0].release)
	if err := <-errc1; err == nil {
		t.Fatalf("expected first add to fail")
	}
	if line := onlyLine(t, s); line.State != Pending {
		t.Fatalf("line must stay pending while another op is in flight, got %+v", line)
	}

	api.setCart(item("42", 2))
	close(replies[1].release)
	if err := <-errc2; err != nil {
		t.Fatalf("second add: %v", err)
	}
	line := onlyLine(t, s)
	if line.Quantity != 2 || line.Confirmed != 2 || line.State != Synced {
		t.Fatalf("expected server state after reconcile, got %+v", line)
	}
	if api.calls() != 2 {
		t.Fatalf("expected one reconciling refresh, got %d cart reads", api.calls())
	}
}

func TestDiscardShowsConfirmedButKeepsInFlightReply(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &stubAPI{}
	api.add = func(_ context.Context, id string, _ int) (*domain.CartItem, error) {
		close(started)
		<-release
		it := item(id, 5)
		return &it, nil
	}
	s := newSynced(t, api, item("42", 2))

	errc := make(chan error, 1)
	go func() { errc <- s.Add(context.Background(), "42", 3) }()
	<-started

	s.Discard("42")
	if line := onlyLine(t, s); line.Quantity != 2 {
		t.Fatalf("expected confirmed quantity after discard, got %+v", line)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("add: %v", err)
	}
	if line := onlyLine(t, s); line.Quantity != 5 || line.State != Synced {
		t.Fatalf("expected server reply applied, got %+v", line)
	}
}

func TestSetQuantityZeroRemovesLine(t *testing.T) {
	api := &stubAPI{}
	var sent int
	api.set = func(_ context.Context, _ string, q int) (*domain.CartItem, error) {
		sent = q
		return nil, nil
	}
	s := newSynced(t, api, item("42", 2))

	if err := s.SetQuantity(context.Background(), "42", -1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if sent != 0 {
		t.Fatalf("expected clamped quantity 0, sent %d", sent)
	}
	if snap := s.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected empty cart, got %+v", snap)
	}
}

func TestRemoveNotFoundRestoresLine(t *testing.T) {
	api := &stubAPI{}
	api.remove = func(context.Context, string) error {
		return &APIError{Status: 404, Message: "not found"}
	}
	s := newSynced(t, api, item("42", 2))

	err := s.Remove(context.Background(), "42")
	var f *Failure
	if !errors.As(err, &f) || f.Kind != Business || f.Message != "product is no longer available" {
		t.Fatalf("unexpected error %v", err)
	}
	if line := onlyLine(t, s); line.Quantity != 2 || line.State != RolledBack {
		t.Fatalf("expected restored line, got %+v", line)
	}
}

func TestRefreshKeepsPendingDisplay(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &stubAPI{}
	api.add = func(_ context.Context, id string, _ int) (*domain.CartItem, error) {
		close(started)
		<-release
		it := item(id, 5)
		return &it, nil
	}
	s := newSynced(t, api, item("42", 1))

	errc := make(chan error, 1)
	go func() { errc <- s.Add(context.Background(), "42", 1) }()
	<-started

	api.setCart(item("42", 4))
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	line := onlyLine(t, s)
	if line.Quantity != 2 || line.Confirmed != 4 || line.State != Pending {
		t.Fatalf("refresh must not clobber a pending line, got %+v", line)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("add: %v", err)
	}
	if line := onlyLine(t, s); line.Quantity != 5 {
		t.Fatalf("expected server quantity 5, got %+v", line)
	}
}

func TestSlowRefreshKeepsNewerConfirmedLine(t *testing.T) {
	api := &stubAPI{}
	api.add = func(_ context.Context, id string, _ int) (*domain.CartItem, error) {
		it := item(id, 2)
		return &it, nil
	}
	s := newSynced(t, api, item("42", 1))

	reading, release := api.holdNextCart()
	errc := make(chan error, 1)
	go func() { errc <- s.Refresh(context.Background()) }()
	<-reading

	if err := s.Add(context.Background(), "42", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("refresh: %v", err)
	}

	line := onlyLine(t, s)
	if line.Quantity != 2 || line.Confirmed != 2 || line.State != Synced {
		t.Fatalf("stale cart read overwrote the confirmed line: %+v", line)
	}
}

func TestSlowRefreshDoesNotResurrectRemovedLine(t *testing.T) {
	api := &stubAPI{}
	api.remove = func(context.Context, string) error { return nil }
	s := newSynced(t, api, item("42", 1))

	reading, release := api.holdNextCart()
	errc := make(chan error, 1)
	go func() { errc <- s.Refresh(context.Background()) }()
	<-reading

	if err := s.Remove(context.Background(), "42"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if snap := s.Snapshot(); len(snap) != 0 {
		t.Fatalf("removed line came back: %+v", snap)
	}

	api.setCart(item("42", 3))
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if line := onlyLine(t, s); line.Quantity != 3 || line.State != Synced {
		t.Fatalf("expected a later refresh to apply, got %+v", line)
	}
}

func TestSnapshotIsSortedAndObserved(t *testing.T) {
	api := &stubAPI{}
	api.setCart(item("b", 1), item("a", 2))
	var seen [][]Line
	s := New(api, nil, OnChange(func(lines []Line) { seen = append(seen, lines) }))

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ProductID != "a" || snap[1].ProductID != "b" {
		t.Fatalf("unexpected order %+v", snap)
	}
	if len(seen) != 1 || len(seen[0]) != 2 {
		t.Fatalf("expected one change notification, got %+v", seen)
	}

	api.setCart(item("a", 2))
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap := s.Snapshot(); len(snap) != 1 || snap[0].ProductID != "a" {
		t.Fatalf("expected line b dropped, got %+v", snap)
	}
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	s := New(&stubAPI{}, nil)
	var f *Failure
	if err := s.Add(context.Background(), "42", 0); !errors.As(err, &f) || f.Kind != Business {
		t.Fatalf("expected business failure, got %v", err)
	}
}
