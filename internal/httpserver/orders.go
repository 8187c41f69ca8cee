package httpserver

import (
	"context"
	"net/http"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/service/checkout"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const idempotencyKeyHeader = "Idempotency-Key"

type checkoutService interface {
	Commit(ctx context.Context, owner domain.CartOwner, in checkout.CommitInput) (*checkout.CommitResult, error)
	Lookup(ctx context.Context, owner domain.CartOwner, key string) (*domain.Order, error)
	Get(ctx context.Context, owner domain.CartOwner, number string) (*domain.Order, error)
}

type orderLineRequest struct {
	ProductID productRef `json:"productId"`
	Quantity  int        `json:"quantity"`
}

type shippingSelectionRequest struct {
	Carrier    string `json:"carrier"`
	Service    string `json:"service"`
	PostalCode string `json:"postalCode"`
}

type commitRequest struct {
	IdempotencyKey  string                   `json:"idempotencyKey"`
	Items           []orderLineRequest       `json:"items"`
	ShippingAddress domain.ShippingAddress   `json:"shippingAddress"`
	Shipping        shippingSelectionRequest `json:"shipping"`
	Payment         domain.PaymentInfo       `json:"payment"`
}

type orderHandler struct {
	checkout checkoutService
	logger   *zap.Logger
}

func (h *orderHandler) commit(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid request body")
		return
	}
	key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}

	in := checkout.CommitInput{
		IdempotencyKey:  key,
		ShippingAddress: req.ShippingAddress,
		Shipping: checkout.ShippingSelection{
			Carrier:    req.Shipping.Carrier,
			Service:    req.Shipping.Service,
			PostalCode: req.Shipping.PostalCode,
		},
		Payment: req.Payment,
	}
	for _, it := range req.Items {
		in.Lines = append(in.Lines, checkout.LineRequest{ProductID: string(it.ProductID), Quantity: it.Quantity})
	}

	res, err := h.checkout.Commit(c.Request.Context(), ownerFrom(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	respondOK(c, status, res.Order)
}

func (h *orderHandler) attempt(c *gin.Context) {
	o, err := h.checkout.Lookup(c.Request.Context(), ownerFrom(c), c.Param("key"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, o)
}

func (h *orderHandler) get(c *gin.Context) {
	o, err := h.checkout.Get(c.Request.Context(), ownerFrom(c), c.Param("number"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, o)
}
