package product

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/dbtest"
	"storefront/internal/domain"
)

func TestPostgres_ListAndGet(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(t)

	pid := dbtest.InsertProduct(t, pool, "amethyst", 4500, 7)
	repo := NewPostgres(pool, nil)

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 product, got %d", len(list))
	}

	got, err := repo.GetByID(ctx, pid)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != pid || got.Stock != 7 || got.PriceCents != 4500 {
		t.Fatalf("unexpected product %+v", got)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgres_GetManyOmitsMissing(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(t)

	a := dbtest.InsertProduct(t, pool, "incense", 900, 3)
	b := dbtest.InsertProduct(t, pool, "tarot", 12000, 1)
	repo := NewPostgres(pool, nil)

	got, err := repo.GetMany(ctx, []string{a, b, "ghost"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(got) != 2 || got[a].Stock != 3 || got[b].Stock != 1 {
		t.Fatalf("unexpected products %+v", got)
	}
}

func TestPostgres_Upsert(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(t)
	repo := NewPostgres(pool, nil)

	p, err := repo.Upsert(ctx, domain.Product{
		Key:        "sage",
		SKU:        "SKU-SAGE",
		Name:       "White Sage",
		PriceCents: 1500,
		Currency:   "ARS",
		Stock:      10,
	})
	if err != nil {
		t.Fatalf("Upsert insert: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("expected ID set")
	}

	updated, err := repo.Upsert(ctx, domain.Product{
		Key:         "sage",
		SKU:         "SKU-SAGE-2",
		Name:        "White Sage Bundle",
		Description: "hand tied",
		PriceCents:  1800,
		Currency:    "ARS",
		Stock:       4,
	})
	if err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	if updated.ID != p.ID {
		t.Fatalf("expected same ID after update")
	}
	if updated.SKU != "SKU-SAGE-2" || updated.Description != "hand tied" || updated.PriceCents != 1800 || updated.Stock != 4 {
		t.Fatalf("unexpected updated product %+v", updated)
	}
}
