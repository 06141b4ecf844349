// Package metrics records engine activity. The Prometheus implementation is
// exposed by the HTTP server at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Verification outcomes.
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "no_match"
	OutcomeNoFace  = "no_face"
	OutcomeError   = "error"
)

// Write outcomes.
const (
	OutcomeStored   = "stored"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
)

// Recorder receives engine events.
type Recorder interface {
	// RecordVerify is called once per verification with its outcome.
	RecordVerify(outcome string, duration time.Duration)
	// RecordWrite is called once per enroll, edit or delete.
	RecordWrite(op, outcome string, imagesUsed int)
	// RecordCacheReload is called after every reload attempt.
	RecordCacheReload(entries int, duration time.Duration, err error)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordVerify(string, time.Duration)          {}
func (Noop) RecordWrite(string, string, int)             {}
func (Noop) RecordCacheReload(int, time.Duration, error) {}

// Prometheus exports the events as Prometheus collectors.
type Prometheus struct {
	verifyTotal   *prometheus.CounterVec
	verifyLatency prometheus.Histogram
	writesTotal   *prometheus.CounterVec
	imagesUsed    prometheus.Counter
	reloadsTotal  *prometheus.CounterVec
	reloadLatency prometheus.Histogram
	cacheEntries  prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "face_registry_verifications_total",
			Help: "Verifications by outcome",
		}, []string{"outcome"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "face_registry_verification_duration_seconds",
			Help:    "Latency of verifications including face detection",
			Buckets: prometheus.DefBuckets,
		}),
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "face_registry_writes_total",
			Help: "Enroll, edit and delete operations by outcome",
		}, []string{"op", "outcome"}),
		imagesUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "face_registry_enrolled_images_total",
			Help: "Images that contributed an embedding to a stored identity",
		}),
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "face_registry_cache_reloads_total",
			Help: "Embedding cache reloads by status",
		}, []string{"status"}),
		reloadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "face_registry_cache_reload_duration_seconds",
			Help:    "Time spent enumerating the store during a cache reload",
			Buckets: prometheus.DefBuckets,
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "face_registry_cache_entries",
			Help: "Identities in the current cache snapshot",
		}),
	}

	reg.MustRegister(p.verifyTotal, p.verifyLatency, p.writesTotal, p.imagesUsed,
		p.reloadsTotal, p.reloadLatency, p.cacheEntries)
	return p
}

// RecordVerify implements Recorder.
func (p *Prometheus) RecordVerify(outcome string, duration time.Duration) {
	p.verifyTotal.WithLabelValues(outcome).Inc()
	p.verifyLatency.Observe(duration.Seconds())
}

// RecordWrite implements Recorder.
func (p *Prometheus) RecordWrite(op, outcome string, imagesUsed int) {
	p.writesTotal.WithLabelValues(op, outcome).Inc()
	if imagesUsed > 0 {
		p.imagesUsed.Add(float64(imagesUsed))
	}
}

// RecordCacheReload implements Recorder.
func (p *Prometheus) RecordCacheReload(entries int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	} else {
		p.cacheEntries.Set(float64(entries))
	}
	p.reloadsTotal.WithLabelValues(status).Inc()
	p.reloadLatency.Observe(duration.Seconds())
}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}
	return r
}
