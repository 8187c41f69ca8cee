package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "")
	cfg := FromEnv()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.HTTPAddr)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected 10s shutdown, got %s", cfg.ShutdownTimeout)
	}
	if cfg.KafkaBrokers != nil {
		t.Fatalf("expected no brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("SHIPPING_ORIGIN_CODE", "5000")
	t.Setenv("DB_MAX_CONNS", "16")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")
	cfg := FromEnv()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if !cfg.CookieSecure {
		t.Fatalf("expected secure cookies")
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.ShutdownTimeout)
	}
	if cfg.DBMaxConns != 16 || cfg.TraceSampleRatio != 0.25 {
		t.Fatalf("unexpected pool/trace settings %d %v", cfg.DBMaxConns, cfg.TraceSampleRatio)
	}
	if cfg.ShippingOrigin != "5000" {
		t.Fatalf("unexpected origin %q", cfg.ShippingOrigin)
	}
}
