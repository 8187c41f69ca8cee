package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	requestIDHeader   = "X-Request-ID"
	sessionCookieName = "session_id"
)

type ctxKey string

const ownerCtxKey ctxKey = "owner"

// traceRequests continues an incoming W3C trace, or starts one, around each
// request.
func traceRequests() gin.HandlerFunc {
	tracer := otel.Tracer("storefront/http")
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// requestLogger tags each request with an id, stores a scoped zap logger in
// the request context and records access logs and metrics.
func requestLogger(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		scoped := logger.With(zap.String("request_id", reqID))
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			scoped = scoped.With(zap.String("trace_id", sc.TraceID().String()))
		}
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), scoped))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		m.HTTPRequest(c.Request.Method, route, strconv.Itoa(status), latency.Seconds())
		scoped.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		)
	}
}

type ownerResolver interface {
	Resolve(ctx context.Context, token string) (domain.CartOwner, bool, error)
	Issue(ctx context.Context) (string, error)
	TTLSeconds() int
}

type bearerVerifier interface {
	Enabled() bool
	Owner(token string) (domain.CartOwner, error)
}

// ownerMiddleware resolves the CartOwner once per request: a valid bearer
// token wins, otherwise the session cookie, otherwise a freshly minted
// anonymous session whose cookie is set on the response.
func ownerMiddleware(sessions ownerResolver, verifier bearerVerifier, secureCookie bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if auth := c.GetHeader("Authorization"); auth != "" && verifier != nil && verifier.Enabled() {
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				respondMessage(c, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			owner, err := verifier.Owner(strings.TrimSpace(token))
			if err != nil {
				respondMessage(c, http.StatusUnauthorized, "invalid token")
				return
			}
			setOwner(c, owner)
			c.Next()
			return
		}

		if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie != "" {
			owner, ok, err := sessions.Resolve(ctx, cookie)
			if err != nil {
				respondError(c, logger, err)
				return
			}
			if ok {
				setOwner(c, owner)
				c.Next()
				return
			}
		}

		token, err := sessions.Issue(ctx)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookieName, token, sessions.TTLSeconds(), "/", "", secureCookie, true)
		setOwner(c, domain.AnonymousOwner(token))
		c.Next()
	}
}

func setOwner(c *gin.Context, owner domain.CartOwner) {
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ownerCtxKey, owner))
}

func ownerFrom(c *gin.Context) domain.CartOwner {
	owner, _ := c.Request.Context().Value(ownerCtxKey).(domain.CartOwner)
	return owner
}
