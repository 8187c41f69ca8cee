package seed

import (
	"context"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/logging"

	"go.uber.org/zap"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// Catalog is the demo wellness catalog used for manual testing.
var Catalog = []domain.Product{
	{Key: "amethyst-cluster", SKU: "CRY-AME-01", Name: "Amatista en drusa", Description: "Drusa de amatista natural de Artigas", PriceCents: 450000, Currency: "ARS", Stock: 5, WeightGrams: 250},
	{Key: "rose-quartz", SKU: "CRY-ROS-01", Name: "Cuarzo rosa", Description: "Canto rodado de cuarzo rosa", PriceCents: 180000, Currency: "ARS", Stock: 20, WeightGrams: 80},
	{Key: "palo-santo", SKU: "AROMA-PS-05", Name: "Palo santo x5", Description: "Atado de cinco varas de palo santo", PriceCents: 95000, Currency: "ARS", Stock: 40, WeightGrams: 120},
	{Key: "sage-bundle", SKU: "AROMA-SAL-01", Name: "Atado de salvia blanca", Description: "Salvia blanca para sahumar", PriceCents: 120000, Currency: "ARS", Stock: 15, WeightGrams: 90},
	{Key: "tarot-deck", SKU: "TAR-RW-01", Name: "Tarot Rider Waite", Description: "Mazo de 78 cartas con guía", PriceCents: 1350000, Currency: "ARS", Stock: 3, WeightGrams: 400},
	{Key: "singing-bowl", SKU: "SON-CUE-01", Name: "Cuenco tibetano", Description: "Cuenco de siete metales con baqueta", PriceCents: 2800000, Currency: "ARS", Stock: 2, WeightGrams: 1200},
	{Key: "reiki-session", SKU: "SRV-REI-60", Name: "Sesión de reiki 60 min", Description: "Turno presencial de reiki", PriceCents: 2500000, Currency: "ARS", Stock: 8, WeightGrams: 0},
}

// Apply upserts the demo catalog. Existing products are matched by key, so
// running it twice resets stock to the demo values.
func Apply(ctx context.Context, products ProductWriter, logger *zap.Logger) (int, error) {
	logger = logging.OrNop(logger)
	for i, p := range Catalog {
		saved, err := products.Upsert(ctx, p)
		if err != nil {
			return i, fmt.Errorf("upsert product %s: %w", p.Key, err)
		}
		logger.Debug("seeded product", zap.String("key", saved.Key), zap.String("product_id", saved.ID), zap.Int("stock", saved.Stock))
	}
	return len(Catalog), nil
}
