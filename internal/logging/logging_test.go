package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOperationError(t *testing.T) {
	base := errors.New("connection refused")

	err := NewOperationError("store.list", "req-1", base)
	if err.Error() != "store.list (request_id=req-1): connection refused" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("expected errors.Is to see the wrapped error")
	}

	err = NewOperationError("store.list", "", base)
	if err.Error() != "store.list: connection refused" {
		t.Errorf("unexpected message without request id: %q", err.Error())
	}

	if NewOperationError("noop", "", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestWithOperation(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := WithOperation(zap.New(core), "verify", "abc")

	logger.Info("done")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "verify" {
		t.Errorf("expected operation=verify, got %v", fields["operation"])
	}
	if fields["request_id"] != "abc" {
		t.Errorf("expected request_id=abc, got %v", fields["request_id"])
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected a logger for nil input")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Error("expected the same logger back")
	}
}
