package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"storefront/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain error is not a unique violation")
	}
}

func TestClassify(t *testing.T) {
	if got := Classify("op", nil); got != nil {
		t.Fatalf("nil stays nil, got %v", got)
	}
	if got := Classify("op", domain.ErrNotFound); !errors.Is(got, domain.ErrNotFound) {
		t.Fatalf("domain errors pass through, got %v", got)
	}
	var te *domain.TransientError
	if got := Classify("op", context.DeadlineExceeded); !errors.As(got, &te) {
		t.Fatalf("deadline should be transient, got %v", got)
	}
	plain := errors.New("syntax error")
	if got := Classify("op", plain); got != plain {
		t.Fatalf("unclassified errors pass through, got %v", got)
	}
}
