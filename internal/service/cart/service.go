package cart

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Service is the Cart Store: it validates requests and delegates the
// serialised, stock-checked writes to the repository.
type Service struct {
	repo    cartRepo
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
}

type cartRepo interface {
	List(ctx context.Context, owner domain.CartOwner) ([]domain.CartItem, error)
	AddLine(ctx context.Context, owner domain.CartOwner, productID string, quantity int) (*domain.CartItem, error)
	SetQuantity(ctx context.Context, owner domain.CartOwner, productID string, quantity int) (*domain.CartItem, error)
	RemoveLine(ctx context.Context, owner domain.CartOwner, productID string) (bool, error)
	Clear(ctx context.Context, owner domain.CartOwner) error
}

func New(repo cartRepo, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		metrics: m,
		logger:  logging.OrNop(logger),
		tracer:  otel.Tracer("storefront/cart"),
	}
}

// Get returns the owner's lines in insertion order; never nil.
func (s *Service) Get(ctx context.Context, owner domain.CartOwner) ([]domain.CartItem, error) {
	if err := owner.Validate(); err != nil {
		return nil, domain.Invalid("owner", "%s", err.Error())
	}
	items, err := s.repo.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.CartItem{}
	}
	return items, nil
}

func (s *Service) AddLine(ctx context.Context, owner domain.CartOwner, productID string, quantity int) (item *domain.CartItem, err error) {
	ctx, done := s.observe(ctx, "add", owner, productID, quantity)
	defer func() { done(err) }()

	productID, err = validateLine(owner, productID)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, domain.Invalid("quantity", "must be at least 1")
	}
	if quantity > domain.MaxLineQuantity {
		return nil, domain.Invalid("quantity", "must be at most %d", domain.MaxLineQuantity)
	}
	return s.repo.AddLine(ctx, owner, productID, quantity)
}

// SetLineQuantity overwrites a line. A quantity of zero or less removes it and
// returns a nil item.
func (s *Service) SetLineQuantity(ctx context.Context, owner domain.CartOwner, productID string, quantity int) (item *domain.CartItem, err error) {
	ctx, done := s.observe(ctx, "set", owner, productID, quantity)
	defer func() { done(err) }()

	productID, err = validateLine(owner, productID)
	if err != nil {
		return nil, err
	}
	if quantity > domain.MaxLineQuantity {
		return nil, domain.Invalid("quantity", "must be at most %d", domain.MaxLineQuantity)
	}
	return s.repo.SetQuantity(ctx, owner, productID, quantity)
}

// RemoveLine is idempotent; removed reports whether a line existed.
func (s *Service) RemoveLine(ctx context.Context, owner domain.CartOwner, productID string) (removed bool, err error) {
	ctx, done := s.observe(ctx, "remove", owner, productID, 0)
	defer func() { done(err) }()

	productID, err = validateLine(owner, productID)
	if err != nil {
		return false, err
	}
	return s.repo.RemoveLine(ctx, owner, productID)
}

func (s *Service) Clear(ctx context.Context, owner domain.CartOwner) error {
	if err := owner.Validate(); err != nil {
		return domain.Invalid("owner", "%s", err.Error())
	}
	return s.repo.Clear(ctx, owner)
}

func validateLine(owner domain.CartOwner, productID string) (string, error) {
	if err := owner.Validate(); err != nil {
		return "", domain.Invalid("owner", "%s", err.Error())
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return "", domain.Invalid("productId", "is required")
	}
	return productID, nil
}

func (s *Service) observe(ctx context.Context, op string, owner domain.CartOwner, productID string, quantity int) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "cart."+op, trace.WithAttributes(
		attribute.String("cart.owner_kind", string(owner.Kind)),
		attribute.String("cart.product_id", productID),
		attribute.Int("cart.quantity", quantity),
	))
	logger := logging.FromContext(ctx, s.logger)

	return ctx, func(err error) {
		outcome := mutationOutcome(err)
		s.metrics.CartMutation(op, outcome)
		if err != nil && !domain.IsBusinessRule(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			logger.Error("cart mutation failed", zap.String("op", op), zap.String("product_id", productID), zap.Error(err))
		} else {
			span.SetStatus(codes.Ok, outcome)
			logger.Debug("cart mutation", zap.String("op", op), zap.String("product_id", productID), zap.String("outcome", outcome))
		}
		span.End()
	}
}

func mutationOutcome(err error) string {
	var (
		ise *domain.InsufficientStockError
		ve  *domain.ValidationError
		te  *domain.TransientError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ise):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &te):
		return "transient"
	default:
		return "error"
	}
}
