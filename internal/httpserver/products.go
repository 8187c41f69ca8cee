package httpserver

import (
	"context"
	"net/http"

	"storefront/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type catalogService interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type productView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	Image       string `json:"image"`
	Stock       int    `json:"stock"`
}

func toProductView(p domain.Product) productView {
	return productView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.PriceCents,
		Currency:    p.Currency,
		Image:       p.ImageURL,
		Stock:       p.Stock,
	}
}

type productHandler struct {
	catalog catalogService
	logger  *zap.Logger
}

func (h *productHandler) list(c *gin.Context) {
	products, err := h.catalog.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, toProductView(p))
	}
	respondOK(c, http.StatusOK, out)
}

func (h *productHandler) get(c *gin.Context) {
	p, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, toProductView(*p))
}
