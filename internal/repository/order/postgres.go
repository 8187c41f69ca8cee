package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"storefront/internal/db"
	"storefront/internal/domain"
	"storefront/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	fault  FaultInjector
}

type Option func(*postgresRepo)

// WithFaultInjector installs a hook that can fail commits mid-transaction.
func WithFaultInjector(fn FaultInjector) Option {
	return func(r *postgresRepo) { r.fault = fn }
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger, opts ...Option) Repository {
	r := &postgresRepo{pool: pool, logger: logging.OrNop(logger)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *postgresRepo) Commit(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	demand, err := o.StockDemand()
	if err != nil {
		return nil, err
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("encode address: %w", err)
	}
	quote, err := json.Marshal(o.Shipping)
	if err != nil {
		return nil, fmt.Errorf("encode shipping: %w", err)
	}
	payment, err := json.Marshal(o.Payment)
	if err != nil {
		return nil, fmt.Errorf("encode payment: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, db.Classify("begin commit tx", err)
	}
	defer tx.Rollback(ctx)

	const insertOrder = `
INSERT INTO orders (id, number, idempotency_key, owner_kind, owner_id, shipping_address, shipping_quote, payment,
                    subtotal_cents, tax_cents, shipping_cents, total_cents, currency)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING created_at
`
	err = tx.QueryRow(ctx, insertOrder,
		o.ID, o.Number, o.IdempotencyKey, string(o.Owner.Kind), o.Owner.ID,
		address, quote, payment,
		o.SubtotalCents, o.TaxCents, o.ShippingCents, o.TotalCents, o.Currency,
	).Scan(&o.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, db.Classify("insert order", err)
	}

	const insertLine = `
INSERT INTO order_lines (order_id, position, product_id, name, unit_price_cents, quantity, total_cents)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	for i, line := range o.Lines {
		if _, err := tx.Exec(ctx, insertLine, o.ID, i, line.ProductID, line.Name, line.UnitPriceCents, line.Quantity, line.TotalCents); err != nil {
			return nil, db.Classify("insert order line", err)
		}
	}

	if r.fault != nil {
		if err := r.fault(ctx, o); err != nil {
			return nil, err
		}
	}

	shortfalls, err := decrementStock(ctx, tx, demand)
	if err != nil {
		return nil, db.Classify("decrement stock", err)
	}
	if len(shortfalls) > 0 {
		return nil, &domain.OutOfStockError{Lines: shortfalls}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE owner_kind = $1 AND owner_id = $2`, string(o.Owner.Kind), o.Owner.ID); err != nil {
		return nil, db.Classify("clear cart", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, db.Classify("commit order tx", err)
	}
	r.logger.Info("order repo: committed",
		zap.String("order_number", o.Number),
		zap.String("idempotency_key", o.IdempotencyKey),
		zap.Int("lines", len(o.Lines)),
	)
	return o, nil
}

// decrementStock applies conditional decrements in product id order so
// concurrent commits lock rows in the same sequence.
func decrementStock(ctx context.Context, tx pgx.Tx, byProduct map[string]int) ([]domain.Shortfall, error) {
	ids := make([]string, 0, len(byProduct))
	for id := range byProduct {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var shortfalls []domain.Shortfall
	for _, id := range ids {
		qty := byProduct[id]
		cmd, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2 AND stock >= $1`, qty, id)
		if err != nil {
			return nil, err
		}
		if cmd.RowsAffected() == 1 {
			continue
		}
		var available int
		err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&available)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		shortfalls = append(shortfalls, domain.Shortfall{ProductID: id, Requested: qty, Available: available})
	}
	return shortfalls, nil
}

const orderColumns = `id::text, number, idempotency_key, owner_kind, owner_id, shipping_address, shipping_quote, payment,
       subtotal_cents, tax_cents, shipping_cents, total_cents, currency, created_at`

func (r *postgresRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
}

func (r *postgresRepo) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = $1`, number)
}

func (r *postgresRepo) getOne(ctx context.Context, q string, arg string) (*domain.Order, error) {
	var o domain.Order
	var kind string
	var address, quote, payment []byte
	err := r.pool.QueryRow(ctx, q, arg).Scan(
		&o.ID, &o.Number, &o.IdempotencyKey, &kind, &o.Owner.ID, &address, &quote, &payment,
		&o.SubtotalCents, &o.TaxCents, &o.ShippingCents, &o.TotalCents, &o.Currency, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, db.Classify("get order", err)
	}
	o.Owner.Kind = domain.OwnerKind(kind)
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if err := json.Unmarshal(quote, &o.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping: %w", err)
	}
	if err := json.Unmarshal(payment, &o.Payment); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
SELECT product_id, name, unit_price_cents, quantity, total_cents
FROM order_lines
WHERE order_id = $1
ORDER BY position ASC
`, o.ID)
	if err != nil {
		return nil, db.Classify("get order lines", err)
	}
	defer rows.Close()
	o.Lines = []domain.OrderLine{}
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ProductID, &l.Name, &l.UnitPriceCents, &l.Quantity, &l.TotalCents); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify("get order lines", err)
	}
	return &o, nil
}
