package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository/memory"
	"storefront/internal/service/shipping"
	"github.com/shopspring/decimal"
)

type recordingPublisher struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (p *recordingPublisher) PublishOrderCommitted(_ context.Context, o *domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, o.Number)
	return p.err
}

type heldGuard struct{}

func (heldGuard) Acquire(context.Context, string, string) (func(context.Context), bool, error) {
	return nil, false, nil
}

type fixture struct {
	store     *memory.Store
	svc       *Service
	publisher *recordingPublisher
	productID string
}

func newFixture(t *testing.T, storeOpts []memory.Option, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewStore(storeOpts...)
	p, err := store.Products().Upsert(context.Background(), domain.Product{
		Key: "amethyst", Name: "Amatista", PriceCents: 450000, Currency: "ARS", Stock: 5, WeightGrams: 250,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	table, err := shipping.LoadDefault()
	if err != nil {
		t.Fatalf("shipping table: %v", err)
	}
	engine := shipping.NewEngine(table, shipping.WithClock(func() time.Time {
		return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	}))
	pub := &recordingPublisher{}
	opts = append([]Option{WithPublisher(pub)}, opts...)
	svc := New(store.Products(), store.Carts(), store.Orders(), engine, Config{
		Origin:   "1001",
		TaxRate:  decimal.RequireFromString("0.21"),
		Currency: "ARS",
	}, nil, opts...)
	return &fixture{store: store, svc: svc, publisher: pub, productID: p.ID}
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	p, err := f.store.Products().GetByID(context.Background(), f.productID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return p.Stock
}

func validInput(key string) CommitInput {
	return CommitInput{
		IdempotencyKey:  key,
		ShippingAddress: domain.ShippingAddress{FullName: "Ana Paz", Street: "Av. Corrientes 1234", City: "CABA", PostalCode: "1001"},
		Shipping:        ShippingSelection{Carrier: "andreani", Service: "standard"},
		Payment:         domain.PaymentInfo{Method: "transfer"},
	}
}

var buyer = domain.AnonymousOwner("buyer-token")

func TestCommitFromCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.store.Carts().AddLine(ctx, buyer, f.productID, 2); err != nil {
		t.Fatalf("AddLine: %v", err)
	}

	res, err := f.svc.Commit(ctx, buyer, validInput("checkout-0001"))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	o := res.Order
	if res.Replayed {
		t.Fatalf("first commit must not be a replay")
	}
	// shipping: 1500*1.1 + 0.5kg*300 = 1800 ARS
	if o.SubtotalCents != 900000 || o.ShippingCents != 180000 || o.TaxCents != 189000 || o.TotalCents != 1269000 {
		t.Fatalf("unexpected totals %+v", o)
	}
	if len(o.Number) != len("ORD-")+12 {
		t.Fatalf("unexpected order number %q", o.Number)
	}
	if got := f.stock(t); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
	items, _ := f.store.Carts().List(ctx, buyer)
	if len(items) != 0 {
		t.Fatalf("expected cart cleared, got %+v", items)
	}
	if len(f.publisher.orders) != 1 || f.publisher.orders[0] != o.Number {
		t.Fatalf("expected one event, got %v", f.publisher.orders)
	}

	again, err := f.svc.Commit(ctx, buyer, validInput("checkout-0001"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !again.Replayed || again.Order.Number != o.Number {
		t.Fatalf("expected replay of %s, got %+v", o.Number, again)
	}
	if got := f.stock(t); got != 3 {
		t.Fatalf("replay changed stock: %d", got)
	}

	found, err := f.svc.Lookup(ctx, buyer, "checkout-0001")
	if err != nil || found.Number != o.Number {
		t.Fatalf("Lookup: %+v %v", found, err)
	}
	if _, err := f.svc.Lookup(ctx, domain.UserOwner("someone-else"), "checkout-0001"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other owner, got %v", err)
	}
	if _, err := f.svc.Get(ctx, buyer, o.Number); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestCommitOutOfStockListsEveryLine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	in := validInput("checkout-oos-1")
	in.Lines = []LineRequest{{ProductID: f.productID, Quantity: 4}, {ProductID: "gone", Quantity: 1}, {ProductID: f.productID, Quantity: 2}}

	_, err := f.svc.Commit(ctx, buyer, in)
	var oos *domain.OutOfStockError
	if !errors.As(err, &oos) {
		t.Fatalf("expected OutOfStockError, got %v", err)
	}
	if len(oos.Lines) != 2 {
		t.Fatalf("expected two shortfalls, got %+v", oos.Lines)
	}
	if oos.Lines[0].ProductID != f.productID || oos.Lines[0].Requested != 6 || oos.Lines[0].Available != 5 {
		t.Fatalf("unexpected merged shortfall %+v", oos.Lines[0])
	}
	if oos.Lines[1].Available != 0 {
		t.Fatalf("missing product should have zero availability: %+v", oos.Lines[1])
	}
	if got := f.stock(t); got != 5 {
		t.Fatalf("stock changed: %d", got)
	}
	if len(f.publisher.orders) != 0 {
		t.Fatalf("no event expected")
	}
}

func TestCommitFaultLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")
	f := newFixture(t, []memory.Option{memory.WithFaultInjector(func(context.Context, *domain.Order) error { return boom })})
	if _, err := f.store.Carts().AddLine(ctx, buyer, f.productID, 1); err != nil {
		t.Fatalf("AddLine: %v", err)
	}

	if _, err := f.svc.Commit(ctx, buyer, validInput("checkout-fault")); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if got := f.stock(t); got != 5 {
		t.Fatalf("stock changed: %d", got)
	}
	items, _ := f.store.Carts().List(ctx, buyer)
	if len(items) != 1 {
		t.Fatalf("cart changed: %+v", items)
	}
	if _, err := f.svc.Lookup(ctx, buyer, "checkout-fault"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("order persisted: %v", err)
	}
}

func TestCommitRejectedWhileAttemptInFlight(t *testing.T) {
	f := newFixture(t, nil, WithAttemptGuard(heldGuard{}))
	in := validInput("checkout-busy")
	in.Lines = []LineRequest{{ProductID: f.productID, Quantity: 1}}
	if _, err := f.svc.Commit(context.Background(), buyer, in); !errors.Is(err, domain.ErrCommitInProgress) {
		t.Fatalf("expected ErrCommitInProgress, got %v", err)
	}
}

func TestConcurrentCommitsWithSameKeyCreateOneOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	in := validInput("checkout-race")
	in.Lines = []LineRequest{{ProductID: f.productID, Quantity: 1}}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[string]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Commit(ctx, buyer, in)
			if err != nil {
				t.Errorf("Commit: %v", err)
				return
			}
			mu.Lock()
			numbers[res.Order.Number]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(numbers) != 1 {
		t.Fatalf("expected a single order number, got %v", numbers)
	}
	if got := f.stock(t); got != 4 {
		t.Fatalf("expected one decrement, stock %d", got)
	}
}

func TestCommitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	cases := map[string]func(*CommitInput){
		"short key":       func(in *CommitInput) { in.IdempotencyKey = "abc" },
		"bad key chars":   func(in *CommitInput) { in.IdempotencyKey = "checkout key!" },
		"zero quantity":   func(in *CommitInput) { in.Lines = []LineRequest{{ProductID: f.productID, Quantity: 0}} },
		"huge quantity":   func(in *CommitInput) { in.Lines = []LineRequest{{ProductID: f.productID, Quantity: 1 << 62}, {ProductID: f.productID, Quantity: 1 << 62}} },
		"merged overflow": func(in *CommitInput) { in.Lines = []LineRequest{{ProductID: f.productID, Quantity: domain.MaxLineQuantity}, {ProductID: f.productID, Quantity: domain.MaxLineQuantity}} },
		"missing street":  func(in *CommitInput) { in.ShippingAddress.Street = "" },
		"missing payment": func(in *CommitInput) { in.Payment.Method = " " },
		"raw card number": func(in *CommitInput) { in.Payment.Reference = "4111 1111 1111 1111" },
		"unknown carrier": func(in *CommitInput) { in.Shipping.Carrier = "dhl" },
		"bad postal code": func(in *CommitInput) { in.ShippingAddress.PostalCode = "ABC" },
		"empty cart":      func(in *CommitInput) { in.Lines = nil },
	}
	for name, mutate := range cases {
		in := validInput("checkout-valid")
		if name != "empty cart" {
			in.Lines = []LineRequest{{ProductID: f.productID, Quantity: 1}}
		}
		mutate(&in)
		_, err := f.svc.Commit(ctx, buyer, in)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
	}
	if got := f.stock(t); got != 5 {
		t.Fatalf("validation failures changed stock: %d", got)
	}
}

func TestPublishFailureDoesNotFailCommit(t *testing.T) {
	f := newFixture(t, nil)
	f.publisher.err = errors.New("broker down")
	in := validInput("checkout-pub-1")
	in.Lines = []LineRequest{{ProductID: f.productID, Quantity: 1}}
	if _, err := f.svc.Commit(context.Background(), buyer, in); err != nil {
		t.Fatalf("expected commit to succeed, got %v", err)
	}
}
