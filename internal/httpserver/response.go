package httpserver

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type successBody struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type errorBody struct {
	Success         bool               `json:"success"`
	Error           string             `json:"error"`
	Field           string             `json:"field,omitempty"`
	ProductID       string             `json:"productId,omitempty"`
	Requested       *int               `json:"requested,omitempty"`
	Available       *int               `json:"available,omitempty"`
	OutOfStockItems []domain.Shortfall `json:"outOfStockItems,omitempty"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, successBody{Success: true, Data: data})
}

func respondMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorBody{Error: msg})
}

// respondError maps the domain error taxonomy onto HTTP statuses. Business
// rule failures are 4xx; only infrastructure failures become 5xx.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		ve  *domain.ValidationError
		ise *domain.InsufficientStockError
		oos *domain.OutOfStockError
		te  *domain.TransientError
		ce  *domain.ConfigurationError
	)
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, domain.ErrNotFound):
		respondMessage(c, http.StatusNotFound, "not found")
	case errors.As(err, &ise):
		requested, available := ise.Requested, ise.Available
		c.AbortWithStatusJSON(http.StatusConflict, errorBody{
			Error:     "insufficient stock",
			ProductID: ise.ProductID,
			Requested: &requested,
			Available: &available,
		})
	case errors.As(err, &oos):
		c.AbortWithStatusJSON(http.StatusConflict, errorBody{Error: "some items are out of stock", OutOfStockItems: oos.Lines})
	case errors.Is(err, domain.ErrCommitInProgress):
		respondMessage(c, http.StatusConflict, err.Error())
	case errors.As(err, &te):
		logging.FromContext(c.Request.Context(), logger).Warn("transient failure", zap.Error(err))
		respondMessage(c, http.StatusServiceUnavailable, "temporarily unavailable, please retry")
	case errors.As(err, &ce):
		logging.FromContext(c.Request.Context(), logger).Error("configuration error", zap.Error(err))
		respondMessage(c, http.StatusInternalServerError, "service misconfigured")
	default:
		logging.FromContext(c.Request.Context(), logger).Error("unhandled error", zap.Error(err))
		respondMessage(c, http.StatusInternalServerError, "internal error")
	}
}
