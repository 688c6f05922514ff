// Package metrics exposes daemon counters in Prometheus format. All methods
// are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/util"
)

const namespace = "nodehostd"

type Metrics struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	containers   *prometheus.GaugeVec
	sessions     prometheus.Gauge
	droppedLines prometheus.Counter
	pollDuration prometheus.Histogram
}

// New registers the collectors in a dedicated registry so tests can create
// as many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Lifecycle operations by operation and result.",
		}, []string{"op", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency, including the runtime call.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"op"}),
		containers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "containers",
			Help:      "Known containers by cached state.",
		}, []string{"state"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Live interactive terminal sessions.",
		}),
		droppedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_lines_dropped_total",
			Help:      "Terminal output lines dropped because a subscriber fell behind.",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of one status poll cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.operations,
		m.opDuration,
		m.containers,
		m.sessions,
		m.droppedLines,
		m.pollDuration,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveOperation(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.opDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// SetContainerStates replaces the per-state gauges from a cache snapshot.
func (m *Metrics) SetContainerStates(snapshot map[string]domain.State) {
	if m == nil {
		return
	}
	counts := util.CountValues(snapshot)
	for _, st := range []domain.State{domain.StateRunning, domain.StateStopped, domain.StateUnknown} {
		m.containers.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) LineDropped() {
	if m == nil {
		return
	}
	m.droppedLines.Inc()
}

func (m *Metrics) ObservePoll(started time.Time) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(time.Since(started).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
