package cart

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/repository/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubRepo struct {
	listItems   []domain.CartItem
	addErr      error
	lastAddID   string
	lastAddQty  int
	setCalls    int
	removeCalls int
}

func (s *stubRepo) List(_ context.Context, _ domain.CartOwner) ([]domain.CartItem, error) {
	return s.listItems, nil
}

func (s *stubRepo) AddLine(_ context.Context, _ domain.CartOwner, productID string, quantity int) (*domain.CartItem, error) {
	s.lastAddID = productID
	s.lastAddQty = quantity
	if s.addErr != nil {
		return nil, s.addErr
	}
	return &domain.CartItem{ProductID: productID, Quantity: quantity}, nil
}

func (s *stubRepo) SetQuantity(_ context.Context, _ domain.CartOwner, productID string, quantity int) (*domain.CartItem, error) {
	s.setCalls++
	return &domain.CartItem{ProductID: productID, Quantity: quantity}, nil
}

func (s *stubRepo) RemoveLine(_ context.Context, _ domain.CartOwner, _ string) (bool, error) {
	s.removeCalls++
	return true, nil
}

func (s *stubRepo) Clear(_ context.Context, _ domain.CartOwner) error { return nil }

var owner = domain.AnonymousOwner("tok")

func TestGetNeverReturnsNil(t *testing.T) {
	svc := New(&stubRepo{}, nil, nil)
	items, err := svc.Get(context.Background(), owner)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty slice, got %#v", items)
	}
}

func TestAddLineValidation(t *testing.T) {
	repo := &stubRepo{}
	svc := New(repo, nil, nil)
	ctx := context.Background()

	var ve *domain.ValidationError
	if _, err := svc.AddLine(ctx, owner, "  ", 1); !errors.As(err, &ve) || ve.Field != "productId" {
		t.Fatalf("expected productId validation, got %v", err)
	}
	if _, err := svc.AddLine(ctx, owner, "p1", 0); !errors.As(err, &ve) || ve.Field != "quantity" {
		t.Fatalf("expected quantity validation, got %v", err)
	}
	if _, err := svc.AddLine(ctx, domain.CartOwner{}, "p1", 1); !errors.As(err, &ve) {
		t.Fatalf("expected owner validation, got %v", err)
	}
	if _, err := svc.AddLine(ctx, owner, "p1", domain.MaxLineQuantity+1); !errors.As(err, &ve) || ve.Field != "quantity" {
		t.Fatalf("expected upper bound validation, got %v", err)
	}
	if _, err := svc.SetLineQuantity(ctx, owner, "p1", 1<<62); !errors.As(err, &ve) || ve.Field != "quantity" {
		t.Fatalf("expected upper bound validation on set, got %v", err)
	}
	if repo.setCalls != 0 {
		t.Fatalf("repository must not be called on invalid set")
	}
	if repo.lastAddID != "" {
		t.Fatalf("repository must not be called on invalid input")
	}

	item, err := svc.AddLine(ctx, owner, " p1 ", 2)
	if err != nil || item.ProductID != "p1" || repo.lastAddQty != 2 {
		t.Fatalf("unexpected add result %+v %v", item, err)
	}
}

func TestMutationOutcomesAreCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := &stubRepo{addErr: &domain.InsufficientStockError{ProductID: "p1", Requested: 6, Available: 5}}
	svc := New(repo, m, nil)

	_, err := svc.AddLine(context.Background(), owner, "p1", 3)
	var ise *domain.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected stock error, got %v", err)
	}
	if got := testutil.ToFloat64(m.CartMutationsCounter().WithLabelValues("add", "insufficient_stock")); got != 1 {
		t.Fatalf("expected one insufficient_stock mutation, got %v", got)
	}
}

func TestLastSetWinsOverEarlierAdd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p, _ := store.Products().Upsert(ctx, domain.Product{Key: "p42", Name: "Amatista", PriceCents: 1000, Stock: 5})
	svc := New(store.Carts(), nil, nil)

	if _, err := svc.AddLine(ctx, owner, p.ID, 2); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if _, err := svc.SetLineQuantity(ctx, owner, p.ID, 1); err != nil {
		t.Fatalf("SetLineQuantity: %v", err)
	}
	items, _ := svc.Get(ctx, owner)
	if len(items) != 1 || items[0].Quantity != 1 {
		t.Fatalf("expected quantity 1, got %+v", items)
	}

	item, err := svc.SetLineQuantity(ctx, owner, p.ID, -1)
	if err != nil || item != nil {
		t.Fatalf("expected removal, got %+v %v", item, err)
	}
	removed, err := svc.RemoveLine(ctx, owner, p.ID)
	if err != nil || removed {
		t.Fatalf("expected idempotent removal, got %v %v", removed, err)
	}
}
