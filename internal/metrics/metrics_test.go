package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheus_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.RecordVerify(OutcomeMatch, 20*time.Millisecond)
	p.RecordVerify(OutcomeMatch, 30*time.Millisecond)
	p.RecordVerify(OutcomeNoFace, time.Millisecond)
	p.RecordWrite("enroll", OutcomeStored, 3)
	p.RecordCacheReload(7, time.Millisecond, nil)
	p.RecordCacheReload(0, time.Millisecond, errors.New("down"))

	if got := testutil.ToFloat64(p.verifyTotal.WithLabelValues(OutcomeMatch)); got != 2 {
		t.Errorf("expected 2 matches, got %v", got)
	}
	if got := testutil.ToFloat64(p.imagesUsed); got != 3 {
		t.Errorf("expected 3 images used, got %v", got)
	}
	if got := testutil.ToFloat64(p.cacheEntries); got != 7 {
		t.Errorf("failed reload must not reset the entry gauge, got %v", got)
	}
	if got := testutil.ToFloat64(p.reloadsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed reload, got %v", got)
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(Noop); !ok {
		t.Error("expected Noop for nil recorder")
	}
}
