package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

type productReader interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type cartReader interface {
	List(ctx context.Context, owner domain.CartOwner) ([]domain.CartItem, error)
}

type orderStore interface {
	Commit(ctx context.Context, order *domain.Order) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
}

type quoter interface {
	Select(origin, destination string, weightKg float64, carrier, service string) (*domain.ShippingQuote, error)
}

type attemptGuard interface {
	Acquire(ctx context.Context, key, holder string) (func(context.Context), bool, error)
}

type publisher interface {
	PublishOrderCommitted(ctx context.Context, order *domain.Order) error
}

type Config struct {
	Origin   string
	TaxRate  decimal.Decimal
	Currency string
	// FetchConcurrency bounds parallel stock reads; zero means 8.
	FetchConcurrency int
}

// Service is the order commit workflow.
type Service struct {
	products  productReader
	carts     cartReader
	orders    orderStore
	quotes    quoter
	guard     attemptGuard
	publisher publisher
	cfg       Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

type Option func(*Service)

// WithAttemptGuard rejects concurrent attempts sharing an idempotency key
// before they reach the database.
func WithAttemptGuard(g attemptGuard) Option {
	return func(s *Service) { s.guard = g }
}

func WithPublisher(p publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(products productReader, carts cartReader, orders orderStore, quotes quoter, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}
	if cfg.Currency == "" {
		cfg.Currency = "ARS"
	}
	s := &Service{
		products: products,
		carts:    carts,
		orders:   orders,
		quotes:   quotes,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		tracer:   otel.Tracer("storefront/checkout"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type LineRequest struct {
	ProductID string
	Quantity  int
}

// ShippingSelection names the offer the shopper picked. Price and weight are
// recomputed server-side.
type ShippingSelection struct {
	Carrier    string
	Service    string
	PostalCode string
}

type CommitInput struct {
	IdempotencyKey  string
	Lines           []LineRequest
	ShippingAddress domain.ShippingAddress
	Shipping        ShippingSelection
	Payment         domain.PaymentInfo
}

type CommitResult struct {
	Order    *domain.Order
	Replayed bool
}

// Commit turns the requested lines (or the owner's cart when none are given)
// into an order. Stock is decremented and the cart cleared atomically; a
// repeated idempotency key returns the original order.
func (s *Service) Commit(ctx context.Context, owner domain.CartOwner, in CommitInput) (res *CommitResult, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Commit", trace.WithAttributes(
		attribute.String("checkout.owner_kind", string(owner.Kind)),
		attribute.String("checkout.idempotency_key", in.IdempotencyKey),
	))
	logger := logging.FromContext(ctx, s.logger).With(zap.String("idempotency_key", in.IdempotencyKey))
	start := time.Now()

	defer func() {
		outcome := commitOutcome(res, err)
		s.metrics.OrderCommit(outcome, time.Since(start).Seconds())
		if err != nil && !domain.IsBusinessRule(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			logger.Error("order commit failed", zap.Error(err))
		} else {
			span.SetStatus(codes.Ok, outcome)
			fields := []zap.Field{zap.String("outcome", outcome), zap.Duration("latency", time.Since(start))}
			if res != nil {
				fields = append(fields, zap.String("order_number", res.Order.Number))
			}
			if err != nil {
				fields = append(fields, zap.String("reason", err.Error()))
			}
			logger.Info("order commit done", fields...)
		}
		span.End()
	}()

	if err := owner.Validate(); err != nil {
		return nil, domain.Invalid("owner", "%s", err.Error())
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	if existing, err := s.replay(ctx, owner, in.IdempotencyKey); err != nil || existing != nil {
		return existing, err
	}

	if s.guard != nil {
		release, ok, gerr := s.guard.Acquire(ctx, in.IdempotencyKey, uuid.NewString())
		switch {
		case gerr != nil:
			logger.Warn("attempt guard unavailable, relying on database constraint", zap.Error(gerr))
		case !ok:
			return nil, domain.ErrCommitInProgress
		default:
			defer release(context.WithoutCancel(ctx))
		}
	}

	requested, err := s.resolveLines(ctx, owner, in.Lines)
	if err != nil {
		return nil, err
	}
	products, err := s.fetchProducts(ctx, requested)
	if err != nil {
		return nil, err
	}

	var shortfalls []domain.Shortfall
	for _, l := range requested {
		available := 0
		if p, ok := products[l.ProductID]; ok {
			available = p.Stock
		}
		if l.Quantity > available {
			shortfalls = append(shortfalls, domain.Shortfall{ProductID: l.ProductID, Requested: l.Quantity, Available: available})
		}
	}
	if len(shortfalls) > 0 {
		return nil, &domain.OutOfStockError{Lines: shortfalls}
	}

	order, err := s.buildOrder(owner, in, requested, products)
	if err != nil {
		return nil, err
	}

	committed, err := s.orders.Commit(ctx, order)
	if errors.Is(err, domain.ErrAlreadyExists) {
		existing, rerr := s.replay(ctx, owner, in.IdempotencyKey)
		if rerr != nil {
			return nil, rerr
		}
		if existing != nil {
			return existing, nil
		}
		return nil, domain.Transient("commit order", err)
	}
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if perr := s.publisher.PublishOrderCommitted(ctx, committed); perr != nil {
			logger.Warn("order event not published", zap.String("order_number", committed.Number), zap.Error(perr))
		}
	}
	return &CommitResult{Order: committed}, nil
}

// Lookup returns the order created for an idempotency key.
func (s *Service) Lookup(ctx context.Context, owner domain.CartOwner, key string) (*domain.Order, error) {
	o, err := s.orders.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if o.Owner != owner {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, owner domain.CartOwner, number string) (*domain.Order, error) {
	o, err := s.orders.GetByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return nil, err
	}
	if o.Owner != owner {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

func (s *Service) replay(ctx context.Context, owner domain.CartOwner, key string) (*CommitResult, error) {
	existing, err := s.orders.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.Owner != owner {
		return nil, domain.Invalid("idempotencyKey", "already used")
	}
	return &CommitResult{Order: existing, Replayed: true}, nil
}

// resolveLines merges duplicate products, keeping first-seen order. An empty
// request falls back to the owner's cart.
func (s *Service) resolveLines(ctx context.Context, owner domain.CartOwner, lines []LineRequest) ([]LineRequest, error) {
	if len(lines) == 0 {
		items, err := s.carts.List(ctx, owner)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			lines = append(lines, LineRequest{ProductID: it.ProductID, Quantity: it.Quantity})
		}
	}
	if len(lines) == 0 {
		return nil, domain.Invalid("items", "cart is empty")
	}

	index := map[string]int{}
	merged := make([]LineRequest, 0, len(lines))
	for _, l := range lines {
		id := strings.TrimSpace(l.ProductID)
		if i, ok := index[id]; ok {
			if l.Quantity > domain.MaxLineQuantity-merged[i].Quantity {
				return nil, domain.Invalid("items", "combined quantity for %s must be at most %d", id, domain.MaxLineQuantity)
			}
			merged[i].Quantity += l.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, LineRequest{ProductID: id, Quantity: l.Quantity})
	}
	return merged, nil
}

// fetchProducts reads current stock for every line concurrently. Missing
// products are omitted from the result.
func (s *Service) fetchProducts(ctx context.Context, lines []LineRequest) (map[string]domain.Product, error) {
	results := make([]*domain.Product, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, l := range lines {
		g.Go(func() error {
			p, err := s.products.GetByID(gctx, l.ProductID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read stock for %s: %w", l.ProductID, err)
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Product, len(lines))
	for _, p := range results {
		if p != nil {
			out[p.ID] = *p
		}
	}
	return out, nil
}

func (s *Service) buildOrder(owner domain.CartOwner, in CommitInput, lines []LineRequest, products map[string]domain.Product) (*domain.Order, error) {
	var (
		subtotal    int64
		weightGrams int
		orderLines  = make([]domain.OrderLine, 0, len(lines))
	)
	for _, l := range lines {
		p := products[l.ProductID]
		total := p.PriceCents * int64(l.Quantity)
		subtotal += total
		weightGrams += p.WeightGrams * l.Quantity
		orderLines = append(orderLines, domain.OrderLine{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       l.Quantity,
			TotalCents:     total,
		})
	}

	destination := strings.TrimSpace(in.Shipping.PostalCode)
	if destination == "" {
		destination = strings.TrimSpace(in.ShippingAddress.PostalCode)
	}
	weightKg, _ := decimal.NewFromInt(int64(weightGrams)).Div(decimal.NewFromInt(1000)).Float64()
	quote, err := s.quotes.Select(s.cfg.Origin, destination, weightKg, in.Shipping.Carrier, in.Shipping.Service)
	if err != nil {
		return nil, err
	}

	tax := decimal.NewFromInt(subtotal).Mul(s.cfg.TaxRate).Round(0).IntPart()
	id := uuid.New()
	return &domain.Order{
		ID:              id.String(),
		Number:          orderNumber(),
		IdempotencyKey:  in.IdempotencyKey,
		Owner:           owner,
		Lines:           orderLines,
		ShippingAddress: in.ShippingAddress,
		Shipping:        *quote,
		Payment:         in.Payment,
		SubtotalCents:   subtotal,
		TaxCents:        tax,
		ShippingCents:   quote.PriceCents,
		TotalCents:      subtotal + tax + quote.PriceCents,
		Currency:        s.cfg.Currency,
	}, nil
}

// orderNumber is "ORD-" followed by 12 upper-case hex digits.
func orderNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:12])
}

func validateInput(in CommitInput) error {
	if !idempotencyKeyPattern.MatchString(in.IdempotencyKey) {
		return domain.Invalid("idempotencyKey", "must be 8-128 characters of letters, digits, '-' or '_'")
	}
	for _, l := range in.Lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return domain.Invalid("items", "productId is required")
		}
		if l.Quantity < 1 {
			return domain.Invalid("items", "quantity must be at least 1")
		}
		if l.Quantity > domain.MaxLineQuantity {
			return domain.Invalid("items", "quantity must be at most %d", domain.MaxLineQuantity)
		}
	}
	a := in.ShippingAddress
	required := []struct{ field, value string }{
		{"fullName", a.FullName},
		{"street", a.Street},
		{"city", a.City},
		{"postalCode", a.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return domain.Invalid("shippingAddress."+r.field, "is required")
		}
	}
	if strings.TrimSpace(in.Shipping.Carrier) == "" {
		return domain.Invalid("shipping.carrier", "is required")
	}
	if strings.TrimSpace(in.Payment.Method) == "" {
		return domain.Invalid("payment.method", "is required")
	}
	if looksLikeCardNumber(in.Payment.Method) || looksLikeCardNumber(in.Payment.Reference) {
		return domain.Invalid("payment", "card numbers must not be sent to the store")
	}
	return nil
}

// looksLikeCardNumber flags 12 or more digits, ignoring spaces and dashes.
func looksLikeCardNumber(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 12
}

func commitOutcome(res *CommitResult, err error) string {
	var (
		oos *domain.OutOfStockError
		ve  *domain.ValidationError
		te  *domain.TransientError
	)
	switch {
	case err == nil && res != nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "committed"
	case errors.As(err, &oos):
		return "out_of_stock"
	case errors.Is(err, domain.ErrCommitInProgress):
		return "in_progress"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &te):
		return "transient"
	default:
		return "error"
	}
}
