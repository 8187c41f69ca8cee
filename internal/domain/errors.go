package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness constraint was hit.
	ErrAlreadyExists = errors.New("already exists")
	// ErrCommitInProgress is returned while another request holds the same order attempt.
	ErrCommitInProgress = errors.New("order attempt already in progress")
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError is the cart-level stock conflict. Requested is the
// quantity the line would hold after the mutation.
type InsufficientStockError struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Shortfall describes one order line that cannot be served.
type Shortfall struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// OutOfStockError lists every line that failed the commit-time stock check.
type OutOfStockError struct {
	Lines []Shortfall
}

func (e *OutOfStockError) Error() string {
	ids := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		ids = append(ids, l.ProductID)
	}
	return "out of stock: " + strings.Join(ids, ", ")
}

// TransientError wraps infrastructure failures the caller may retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError unless it is nil or already classified.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

// ConfigurationError signals static reference data that cannot serve a request.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// IsBusinessRule reports whether err is a recoverable, caller-actionable failure.
func IsBusinessRule(err error) bool {
	var (
		ve  *ValidationError
		ise *InsufficientStockError
		ose *OutOfStockError
	)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCommitInProgress):
		return true
	case errors.As(err, &ve), errors.As(err, &ise), errors.As(err, &ose):
		return true
	}
	return false
}
