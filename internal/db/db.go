package db

import (
	"context"
	"strings"
	"time"

	"storefront/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const defaultSlowQuery = 200 * time.Millisecond

type options struct {
	logger    *zap.Logger
	maxConns  int32
	slowQuery time.Duration
}

type Option func(*options)

// WithLogger enables slow query logging on the pool.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMaxConns(n int32) Option {
	return func(o *options) { o.maxConns = n }
}

// Connect opens a pgx pool sized for the cart and commit paths and verifies
// it with a ping.
func Connect(ctx context.Context, dsn string, opts ...Option) (*pgxpool.Pool, error) {
	o := options{slowQuery: defaultSlowQuery}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute
	if o.maxConns > 0 {
		cfg.MaxConns = o.maxConns
	}
	if o.logger != nil {
		cfg.ConnConfig.Tracer = &slowQueryTracer{logger: o.logger, threshold: o.slowQuery}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, Classify("db ping", err)
	}
	return pool, nil
}

type queryStartKey struct{}

type queryStart struct {
	sql string
	at  time.Time
}

// slowQueryTracer logs statements slower than threshold and failed ones.
type slowQueryTracer struct {
	logger    *zap.Logger
	threshold time.Duration
	now       func() time.Time
}

func (t *slowQueryTracer) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *slowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{sql: data.SQL, at: t.clock()})
}

func (t *slowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := t.clock().Sub(start.at)
	logger := logging.FromContext(ctx, t.logger)
	switch {
	case data.Err != nil && !IsUniqueViolation(data.Err):
		logger.Warn("query failed", zap.String("sql", compactSQL(start.sql)), zap.Duration("elapsed", elapsed), zap.Error(data.Err))
	case elapsed >= t.threshold:
		logger.Warn("slow query", zap.String("sql", compactSQL(start.sql)), zap.Duration("elapsed", elapsed))
	}
}

func compactSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
