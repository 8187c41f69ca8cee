package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/events"
	"storefront/internal/httpserver"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	cartrepo "storefront/internal/repository/cart"
	"storefront/internal/repository/memory"
	orderrepo "storefront/internal/repository/order"
	productrepo "storefront/internal/repository/product"
	"storefront/internal/repository/session"
	"storefront/internal/seed"
	"storefront/internal/service/anonymous"
	cartsvc "storefront/internal/service/cart"
	"storefront/internal/service/checkout"
	"storefront/internal/service/identity"
	productsvc "storefront/internal/service/product"
	"storefront/internal/service/shipping"
	"storefront/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const attemptGuardTTL = 30 * time.Second

type stores struct {
	products productrepo.Repository
	carts    cartrepo.Repository
	orders   orderrepo.Repository
	ready    []httpserver.ReadyCheck
	close    func()
}

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New("storefront-api", cfg.AppEnv)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	shutdownTracing, err := tracing.Init("storefront-api", cfg.JaegerEndpoint, cfg.TraceSampleRatio, logger)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", zap.Error(err))
		}
	}()

	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		logger.Fatal("invalid TAX_RATE", zap.String("value", cfg.TaxRate), zap.Error(err))
	}
	table, err := shipping.LoadFile(cfg.ShippingZonesFile)
	if err != nil {
		logger.Fatal("load shipping table", zap.Error(err))
	}
	engine := shipping.NewEngine(table)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer st.close()
	readiness := st.ready

	var (
		sessions session.Repository
		guard    *cache.AttemptGuard
	)
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		sessions = session.NewRedis(rdb)
		guard = cache.NewAttemptGuard(rdb, attemptGuardTTL)
		readiness = append(readiness, httpserver.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	} else {
		logger.Warn("REDIS_ADDR not set, sessions are process local and commits are not guarded")
		sessions = session.NewMemory(nil)
	}

	var publisher events.Publisher = events.Nop()
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafka(cfg.KafkaBrokers, cfg.KafkaOrderTopic, logger)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close publisher", zap.Error(err))
		}
	}()

	checkoutOpts := []checkout.Option{checkout.WithPublisher(publisher), checkout.WithMetrics(m)}
	if guard != nil {
		checkoutOpts = append(checkoutOpts, checkout.WithAttemptGuard(guard))
	}
	checkoutService := checkout.New(st.products, st.carts, st.orders, engine, checkout.Config{
		Origin:   cfg.ShippingOrigin,
		TaxRate:  taxRate,
		Currency: cfg.Currency,
	}, logger, checkoutOpts...)

	srv := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		Carts:          cartsvc.New(st.carts, m, logger),
		Catalog:        productsvc.New(st.products),
		Shipping:       engine,
		Checkout:       checkoutService,
		Sessions:       anonymous.New(sessions, logger),
		Verifier:       identity.NewVerifier(cfg.JWTSecret),
		Metrics:        m,
		Gatherer:       reg,
		Readiness:      readiness,
		ShippingOrigin: cfg.ShippingOrigin,
		CookieSecure:   cfg.CookieSecure,
		CORSOrigins:    cfg.CORSOrigins,
	})

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", zap.String("addr", cfg.HTTPAddr), zap.String("backend", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	switch cfg.StoreBackend {
	case "memory":
		store := memory.NewStore()
		n, err := seed.Apply(ctx, store.Products(), logger)
		if err != nil {
			return stores{}, fmt.Errorf("seed memory store: %w", err)
		}
		logger.Info("memory store seeded", zap.Int("products", n))
		return stores{
			products: store.Products(),
			carts:    store.Carts(),
			orders:   store.Orders(),
			close:    func() {},
		}, nil
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DBConnString, db.WithLogger(logger), db.WithMaxConns(cfg.DBMaxConns))
		if err != nil {
			return stores{}, fmt.Errorf("connect to db: %w", err)
		}
		return stores{
			products: productrepo.NewPostgres(pool, logger),
			carts:    cartrepo.NewPostgres(pool),
			orders:   orderrepo.NewPostgres(pool, logger),
			ready:    []httpserver.ReadyCheck{{Name: "postgres", Check: pool.Ping}},
			close:    pool.Close,
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
