package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextLoggerFallsBack(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	fallback := zap.New(core).With(zap.String("scope", "fallback"))
	scoped := zap.New(core).With(zap.String("scope", "request"))

	FromContext(context.Background(), fallback).Info("a")
	FromContext(WithContext(context.Background(), scoped), fallback).Info("b")
	FromContext(WithContext(context.Background(), nil), fallback).Info("c")

	entries := logs.All()
	want := []string{"fallback", "request", "fallback"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if got := e.ContextMap()["scope"]; got != want[i] {
			t.Fatalf("entry %d: expected scope %s, got %v", i, want[i], got)
		}
	}

	// A nil fallback yields a usable no-op logger.
	FromContext(context.Background(), nil).Info("dropped")
}

func TestNewTagsServiceAndEnv(t *testing.T) {
	t.Setenv("LOG_FILE", "")
	logger, err := New("storefront-test", "development")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("development logger should log debug")
	}
}
