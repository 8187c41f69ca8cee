package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"storefront/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type cartService interface {
	Get(ctx context.Context, owner domain.CartOwner) ([]domain.CartItem, error)
	AddLine(ctx context.Context, owner domain.CartOwner, productID string, quantity int) (*domain.CartItem, error)
	SetLineQuantity(ctx context.Context, owner domain.CartOwner, productID string, quantity int) (*domain.CartItem, error)
	RemoveLine(ctx context.Context, owner domain.CartOwner, productID string) (bool, error)
}

// productRef accepts a product id sent either as a JSON string or number.
type productRef string

func (p *productRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = productRef(strings.TrimSpace(s))
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = productRef(n.String())
	return nil
}

type cartLineRequest struct {
	ProductID productRef `json:"productId"`
	Quantity  *int       `json:"quantity"`
}

type cartHandler struct {
	carts  cartService
	logger *zap.Logger
}

func (h *cartHandler) get(c *gin.Context) {
	items, err := h.carts.Get(c.Request.Context(), ownerFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, items)
}

func (h *cartHandler) add(c *gin.Context) {
	req, ok := bindCartLine(c)
	if !ok {
		return
	}
	if req.Quantity == nil || *req.Quantity < 1 {
		respondError(c, h.logger, domain.Invalid("quantity", "must be at least 1"))
		return
	}
	item, err := h.carts.AddLine(c.Request.Context(), ownerFrom(c), string(req.ProductID), *req.Quantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, item)
}

func (h *cartHandler) update(c *gin.Context) {
	req, ok := bindCartLine(c)
	if !ok {
		return
	}
	if req.Quantity == nil {
		respondError(c, h.logger, domain.Invalid("quantity", "is required"))
		return
	}
	item, err := h.carts.SetLineQuantity(c.Request.Context(), ownerFrom(c), string(req.ProductID), *req.Quantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if item == nil {
		respondOK(c, http.StatusOK, nil)
		return
	}
	respondOK(c, http.StatusOK, item)
}

func (h *cartHandler) remove(c *gin.Context) {
	productID := strings.TrimSpace(c.Query("productId"))
	if productID == "" {
		respondError(c, h.logger, domain.Invalid("productId", "is required"))
		return
	}
	removed, err := h.carts.RemoveLine(c.Request.Context(), ownerFrom(c), productID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !removed {
		respondError(c, h.logger, domain.ErrNotFound)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"productId": productID})
}

func bindCartLine(c *gin.Context) (cartLineRequest, bool) {
	var req cartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.ProductID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "productId is required", Field: "productId"})
		return req, false
	}
	return req, true
}
