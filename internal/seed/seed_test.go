package seed

import (
	"context"
	"testing"

	"storefront/internal/repository/memory"
)

func TestApplyIsRepeatable(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		n, err := Apply(ctx, store.Products(), nil)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if n != len(Catalog) {
			t.Fatalf("expected %d products, got %d", len(Catalog), n)
		}
	}

	products, err := store.Products().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != len(Catalog) {
		t.Fatalf("expected upsert by key, got %d products", len(products))
	}
	for _, p := range products {
		if p.ID == "" || p.Stock < 0 || p.PriceCents <= 0 {
			t.Fatalf("unexpected seeded product %+v", p)
		}
	}
}
