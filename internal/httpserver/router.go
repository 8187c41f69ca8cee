package httpserver

import (
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps carries the services the router exposes.
type Deps struct {
	Carts     cartService
	Catalog   catalogService
	Shipping  quoteEngine
	Checkout  checkoutService
	Sessions  ownerResolver
	Verifier  bearerVerifier
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Readiness []ReadyCheck

	ShippingOrigin string
	CookieSecure   bool
	CORSOrigins    []string
}

var defaultCORSOrigins = []string{"http://localhost:5173"}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, deps Deps) *gin.Engine {
	logger = logging.OrNop(logger)
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	router.Use(
		gin.Recovery(),
		traceRequests(),
		requestLogger(logger, deps.Metrics),
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", idempotencyKeyHeader, requestIDHeader, "traceparent", "tracestate"},
			ExposeHeaders:    []string{"Content-Length", requestIDHeader},
			AllowCredentials: true,
		}),
	)

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Readiness))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	products := &productHandler{catalog: deps.Catalog, logger: logger}
	router.GET("/products", products.list)
	router.GET("/products/:id", products.get)

	shipping := &shippingHandler{engine: deps.Shipping, origin: deps.ShippingOrigin, metrics: deps.Metrics, logger: logger}
	router.GET("/shipping/quotes", shipping.quotes)

	owned := router.Group("/", ownerMiddleware(deps.Sessions, deps.Verifier, deps.CookieSecure, logger))

	carts := &cartHandler{carts: deps.Carts, logger: logger}
	owned.GET("/cart", carts.get)
	owned.POST("/cart", carts.add)
	owned.PUT("/cart", carts.update)
	owned.DELETE("/cart", carts.remove)

	orders := &orderHandler{checkout: deps.Checkout, logger: logger}
	owned.POST("/orders", orders.commit)
	owned.GET("/orders/attempts/:key", orders.attempt)
	owned.GET("/orders/:number", orders.get)

	return router
}
