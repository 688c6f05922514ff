package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/auto-dns/nodehostd/internal/domain"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	metric := &dto.Metric{}
	if err := (<-ch).Write(metric); err != nil {
		t.Fatal(err)
	}
	if metric.Counter != nil {
		return metric.Counter.GetValue()
	}
	return metric.Gauge.GetValue()
}

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("start", time.Now(), nil)
	m.ObserveOperation("start", time.Now(), errors.New("boom"))
	m.ObserveOperation("start", time.Now(), nil)

	if got := counterValue(t, m.operations.WithLabelValues("start", "success")); got != 2 {
		t.Errorf("success count = %v", got)
	}
	if got := counterValue(t, m.operations.WithLabelValues("start", "error")); got != 1 {
		t.Errorf("error count = %v", got)
	}
}

func TestSetContainerStates(t *testing.T) {
	m := New()
	m.SetContainerStates(map[string]domain.State{
		"a": domain.StateRunning,
		"b": domain.StateRunning,
		"c": domain.StateStopped,
	})
	if got := counterValue(t, m.containers.WithLabelValues("RUNNING")); got != 2 {
		t.Errorf("running = %v", got)
	}
	if got := counterValue(t, m.containers.WithLabelValues("UNKNOWN")); got != 0 {
		t.Errorf("unknown = %v", got)
	}
}

func TestSessionsGauge(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	if got := counterValue(t, m.sessions); got != 1 {
		t.Errorf("sessions = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("create", time.Now(), nil)
	m.SetContainerStates(nil)
	m.SessionOpened()
	m.SessionClosed()
	m.LineDropped()
	m.ObservePoll(time.Now())
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.LineDropped()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "nodehostd_session_lines_dropped_total 1") {
		t.Fatalf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
