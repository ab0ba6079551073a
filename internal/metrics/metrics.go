// Package metrics exposes process metrics in prometheus format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgegrid/internal/events"
	"edgegrid/internal/models"
)

type Metrics struct {
	reg *prometheus.Registry

	events       *prometheus.CounterVec
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runLatency   *prometheus.GaugeVec
	runErrorRate *prometheus.GaugeVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	nodeUsage    *prometheus.GaugeVec
	nodeStatus   *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgegrid", Name: "events_total",
			Help: "Change events published, by kind.",
		}, []string{"kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgegrid", Subsystem: "diagnostics", Name: "runs_total",
			Help: "Terminal diagnostic runs, by test and status.",
		}, []string{"test_id", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edgegrid", Subsystem: "diagnostics", Name: "run_duration_seconds",
			Help:    "Wall time from start to terminal state.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300},
		}, []string{"test_id"}),
		runLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "edgegrid", Subsystem: "diagnostics", Name: "latency_ms",
			Help: "Latency measured by the latest run of a key.",
		}, []string{"test_id", "scope"}),
		runErrorRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "edgegrid", Subsystem: "diagnostics", Name: "error_rate_percent",
			Help: "Error rate measured by the latest run of a key.",
		}, []string{"test_id", "scope"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgegrid", Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests, by route pattern and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edgegrid", Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		nodeUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "edgegrid", Subsystem: "node", Name: "usage_percent",
			Help: "Latest reported utilisation of an edge node, by resource.",
		}, []string{"node", "resource"}),
		nodeStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "edgegrid", Subsystem: "node", Name: "status",
			Help: "Edge node health: 0 healthy, 1 warning, 2 critical, -1 unknown.",
		}, []string{"node"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events, m.runs, m.runDuration, m.runLatency, m.runErrorRate, m.httpRequests, m.httpDuration,
		m.nodeUsage, m.nodeStatus,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Publish counts change events.
func (m *Metrics) Publish(_ context.Context, e events.Event) {
	m.events.WithLabelValues(string(e.Kind)).Inc()
}

// RecordRun observes a terminal diagnostic run.
func (m *Metrics) RecordRun(_ context.Context, run models.TestRun) {
	m.runs.WithLabelValues(run.TestID, string(run.Status)).Inc()
	if run.CompletedAt != nil {
		m.runDuration.WithLabelValues(run.TestID).Observe(run.CompletedAt.Sub(run.StartedAt).Seconds())
	}
	if run.Status == models.RunCancelled {
		return
	}
	m.runLatency.WithLabelValues(run.TestID, run.Scope).Set(run.Metrics.LatencyMs)
	m.runErrorRate.WithLabelValues(run.TestID, run.Scope).Set(run.Metrics.ErrorRate)
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

var nodeStatusValue = map[models.NodeStatus]float64{
	models.NodeHealthy:  0,
	models.NodeWarning:  1,
	models.NodeCritical: 2,
}

// ObserveNode exports the latest health sample of a node.
func (m *Metrics) ObserveNode(h models.NodeHealth) {
	v, ok := nodeStatusValue[h.Status]
	if !ok {
		v = -1
	}
	m.nodeStatus.WithLabelValues(h.ID).Set(v)
	m.nodeUsage.WithLabelValues(h.ID, "cpu").Set(h.CPU)
	m.nodeUsage.WithLabelValues(h.ID, "memory").Set(h.Memory)
	m.nodeUsage.WithLabelValues(h.ID, "storage").Set(h.Storage)
	m.nodeUsage.WithLabelValues(h.ID, "network").Set(h.Network)
}
