// Package metrics provides Prometheus metrics for an ingestion run.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "citegraph"

// Metrics holds all run metrics on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Counters
	RecordsRead       prometheus.Counter
	BatchesFlushed    *prometheus.CounterVec
	PhaseAttempts     *prometheus.CounterVec
	PhaseFailures     *prometheus.CounterVec
	ElementsLoaded    *prometheus.CounterVec
	MalformedYears    prometheus.Counter
	DroppedAuthors    prometheus.Counter
	DroppedReferences prometheus.Counter

	// Gauges
	BytesRead prometheus.Gauge

	// Histograms
	PhaseDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RecordsRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_read_total",
		Help:      "Primary records read from the input",
	})
	m.BatchesFlushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_flushed_total",
			Help:      "Batches flushed by scope",
		},
		[]string{"scope"},
	)
	m.PhaseAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_attempts_total",
			Help:      "Store calls attempted by load phase",
		},
		[]string{"phase"},
	)
	m.PhaseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_failures_total",
			Help:      "Failed store calls by load phase",
		},
		[]string{"phase"},
	)
	m.ElementsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elements_loaded_total",
			Help:      "Nodes or edges submitted by load phase",
		},
		[]string{"phase"},
	)
	m.MalformedYears = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_years_total",
		Help:      "Records whose year could not be parsed",
	})
	m.DroppedAuthors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_authors_total",
		Help:      "Author entries with neither id nor name",
	})
	m.DroppedReferences = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_references_total",
		Help:      "Empty or non-string reference entries",
	})
	m.BytesRead = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "input_bytes_read",
		Help:      "Bytes of input consumed in the current pass",
	})
	m.PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Time spent in a load phase, including retries",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"phase"},
	)

	m.registry.MustRegister(
		m.RecordsRead,
		m.BatchesFlushed,
		m.PhaseAttempts,
		m.PhaseFailures,
		m.ElementsLoaded,
		m.MalformedYears,
		m.DroppedAuthors,
		m.DroppedReferences,
		m.BytesRead,
		m.PhaseDuration,
	)
	m.registry.MustRegister(prometheus.NewGoCollector())

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Helper methods for common operations

// RecordRecords adds to the records-read counter.
func (m *Metrics) RecordRecords(n int) {
	if m != nil {
		m.RecordsRead.Add(float64(n))
	}
}

// RecordBatch counts one flushed batch.
func (m *Metrics) RecordBatch(scope string) {
	if m != nil {
		m.BatchesFlushed.WithLabelValues(scope).Inc()
	}
}

// RecordAttempt counts one store call and whether it failed.
func (m *Metrics) RecordAttempt(phase string, failed bool) {
	if m == nil {
		return
	}
	m.PhaseAttempts.WithLabelValues(phase).Inc()
	if failed {
		m.PhaseFailures.WithLabelValues(phase).Inc()
	}
}

// RecordPhase records a finished phase.
func (m *Metrics) RecordPhase(phase string, elements int, d time.Duration) {
	if m == nil {
		return
	}
	m.ElementsLoaded.WithLabelValues(phase).Add(float64(elements))
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordExtraction adds extractor counters for one record.
func (m *Metrics) RecordExtraction(malformedYear bool, droppedAuthors, droppedRefs int) {
	if m == nil {
		return
	}
	if malformedYear {
		m.MalformedYears.Inc()
	}
	m.DroppedAuthors.Add(float64(droppedAuthors))
	m.DroppedReferences.Add(float64(droppedRefs))
}

// SetBytesRead sets the input offset gauge.
func (m *Metrics) SetBytesRead(n int64) {
	if m != nil {
		m.BytesRead.Set(float64(n))
	}
}
