package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type quoteEngine interface {
	Quote(origin, destination string, weightKg float64) ([]domain.ShippingQuote, error)
}

type shippingHandler struct {
	engine  quoteEngine
	origin  string
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func (h *shippingHandler) quotes(c *gin.Context) {
	weight := 0.0
	if raw := strings.TrimSpace(c.Query("weightKg")); raw != "" {
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.metrics.Quote("invalid")
			respondError(c, h.logger, domain.Invalid("weightKg", "must be a number"))
			return
		}
		weight = w
	}
	quotes, err := h.engine.Quote(h.origin, c.Query("postalCode"), weight)
	if err != nil {
		h.metrics.Quote("error")
		respondError(c, h.logger, err)
		return
	}
	h.metrics.Quote("ok")
	respondOK(c, http.StatusOK, quotes)
}
