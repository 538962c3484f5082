package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("expected logger, got error: %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
}

func TestWithOperationAddsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	WithOperation(zap.New(core), "faceauth.initialize", "req-1").Info("done")
	WithOperation(zap.New(core), "faceauth.initialize", "").Info("done")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if first["operation"] != "faceauth.initialize" || first["request_id"] != "req-1" {
		t.Fatalf("unexpected fields: %v", first)
	}
	if _, ok := entries[1].ContextMap()["request_id"]; ok {
		t.Fatal("expected request_id to be omitted when empty")
	}
}

func TestOperationErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := NewOperationError("redis.lock", "req-9", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the cause")
	}
	if got, want := err.Error(), "redis.lock (request_id=req-9): boom"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if NewOperationError("noop", "", nil) != nil {
		t.Fatal("expected nil for nil cause")
	}
}

func TestOperationOfReturnsInnermost(t *testing.T) {
	inner := NewOperationError("verification.face_match", "S", errors.New("reset"))
	outer := NewOperationError("usecase.authenticate", "req-1", inner)
	if got := OperationOf(outer); got != "verification.face_match" {
		t.Fatalf("unexpected operation %q", got)
	}
	if got := OperationOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty operation, got %q", got)
	}
}
