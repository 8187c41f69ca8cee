package cart

import (
	"context"
	"errors"

	"storefront/internal/db"
	"storefront/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) List(ctx context.Context, owner domain.CartOwner) ([]domain.CartItem, error) {
	const q = `
SELECT p.id, p.name, p.price_cents, p.image_url, cl.quantity, p.stock, p.weight_grams
FROM cart_lines cl
JOIN products p ON p.id = cl.product_id
WHERE cl.owner_kind = $1 AND cl.owner_id = $2
ORDER BY cl.created_at ASC, cl.product_id ASC
`
	rows, err := r.pool.Query(ctx, q, string(owner.Kind), owner.ID)
	if err != nil {
		return nil, db.Classify("list cart", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.PriceCents, &it.Image, &it.Quantity, &it.Stock, &it.WeightGrams); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify("list cart", err)
	}
	return items, nil
}

func (r *postgresRepo) AddLine(ctx context.Context, owner domain.CartOwner, productID string, quantity int) (*domain.CartItem, error) {
	var item *domain.CartItem
	err := r.inLineTx(ctx, owner, productID, func(tx pgx.Tx) error {
		product, err := productForShare(ctx, tx, productID)
		if err != nil {
			return err
		}
		existing, _, err := currentQuantity(ctx, tx, owner, productID)
		if err != nil {
			return err
		}
		if quantity > product.Stock-existing {
			return &domain.InsufficientStockError{ProductID: productID, Requested: domain.AddQuantities(existing, quantity), Available: product.Stock}
		}
		newQty := existing + quantity
		if _, err := tx.Exec(ctx, `
INSERT INTO cart_lines (owner_kind, owner_id, product_id, quantity)
VALUES ($1, $2, $3, $4)
ON CONFLICT (owner_kind, owner_id, product_id)
DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = clock_timestamp()
`, string(owner.Kind), owner.ID, productID, newQty); err != nil {
			return err
		}
		it := domain.ItemFromProduct(product, newQty)
		item = &it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *postgresRepo) SetQuantity(ctx context.Context, owner domain.CartOwner, productID string, quantity int) (*domain.CartItem, error) {
	var item *domain.CartItem
	err := r.inLineTx(ctx, owner, productID, func(tx pgx.Tx) error {
		if quantity <= 0 {
			removed, err := deleteLine(ctx, tx, owner, productID)
			if err != nil {
				return err
			}
			if !removed {
				return domain.ErrNotFound
			}
			return nil
		}
		_, exists, err := currentQuantity(ctx, tx, owner, productID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		product, err := productForShare(ctx, tx, productID)
		if err != nil {
			return err
		}
		if quantity > product.Stock {
			return &domain.InsufficientStockError{ProductID: productID, Requested: quantity, Available: product.Stock}
		}
		if _, err := tx.Exec(ctx, `
UPDATE cart_lines
SET quantity = $1, updated_at = clock_timestamp()
WHERE owner_kind = $2 AND owner_id = $3 AND product_id = $4
`, quantity, string(owner.Kind), owner.ID, productID); err != nil {
			return err
		}
		it := domain.ItemFromProduct(product, quantity)
		item = &it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *postgresRepo) RemoveLine(ctx context.Context, owner domain.CartOwner, productID string) (bool, error) {
	var removed bool
	err := r.inLineTx(ctx, owner, productID, func(tx pgx.Tx) error {
		var err error
		removed, err = deleteLine(ctx, tx, owner, productID)
		return err
	})
	return removed, err
}

func (r *postgresRepo) Clear(ctx context.Context, owner domain.CartOwner) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_lines WHERE owner_kind = $1 AND owner_id = $2`, string(owner.Kind), owner.ID)
	return db.Classify("clear cart", err)
}

// inLineTx runs fn in a transaction holding the advisory lock for the
// (owner, product) key, so same-key mutations are applied in lock order.
func (r *postgresRepo) inLineTx(ctx context.Context, owner domain.CartOwner, productID string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return db.Classify("begin cart tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, owner.Key()+":"+productID); err != nil {
		return db.Classify("lock cart line", err)
	}
	if err := fn(tx); err != nil {
		return db.Classify("cart mutation", err)
	}
	return db.Classify("commit cart tx", tx.Commit(ctx))
}

func productForShare(ctx context.Context, tx pgx.Tx, productID string) (domain.Product, error) {
	var p domain.Product
	err := tx.QueryRow(ctx, `
SELECT id, name, price_cents, image_url, stock, weight_grams
FROM products
WHERE id = $1
FOR SHARE
`, productID).Scan(&p.ID, &p.Name, &p.PriceCents, &p.ImageURL, &p.Stock, &p.WeightGrams)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, domain.ErrNotFound
	}
	return p, err
}

func currentQuantity(ctx context.Context, tx pgx.Tx, owner domain.CartOwner, productID string) (int, bool, error) {
	var qty int
	err := tx.QueryRow(ctx, `
SELECT quantity
FROM cart_lines
WHERE owner_kind = $1 AND owner_id = $2 AND product_id = $3
`, string(owner.Kind), owner.ID, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return qty, true, nil
}

func deleteLine(ctx context.Context, tx pgx.Tx, owner domain.CartOwner, productID string) (bool, error) {
	cmd, err := tx.Exec(ctx, `
DELETE FROM cart_lines
WHERE owner_kind = $1 AND owner_id = $2 AND product_id = $3
`, string(owner.Kind), owner.ID, productID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
