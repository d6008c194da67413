// Package perf records request, query and domain metrics on a private
// Prometheus registry.
package perf

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EntryKind distinguishes request vs query entries.
type EntryKind uint8

const (
	KindRequest EntryKind = iota
	KindQuery
)

// Entry is a single timing observation.
type Entry struct {
	Kind       EntryKind
	Path       string // HTTP route pattern or SQL operation
	StatusCode int    // HTTP status (0 for queries)
	DurationMs float64
	Timestamp  time.Time
}

// Collector owns the service's metrics.
type Collector struct {
	registry  *prometheus.Registry
	requests  *prometheus.HistogramVec
	queries   *prometheus.HistogramVec
	decisions *prometheus.CounterVec
	notices   *prometheus.CounterVec
	count     int64
}

// NewCollector creates a collector with its own registry, including Go runtime
// and process metrics.
// POST: Returns a ready-to-use collector
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frontdesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
		queries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frontdesk",
			Name:      "db_query_duration_seconds",
			Help:      "SQLite call latency by operation.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Name:      "checkin_decisions_total",
			Help:      "Check-in decisions by status and rejection code.",
		}, []string{"status", "code"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Name:      "notices_total",
			Help:      "Notices by kind and outcome (created, suppressed).",
		}, []string{"kind", "outcome"}),
	}
	c.registry.MustRegister(
		c.requests, c.queries, c.decisions, c.notices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Record observes one timing entry.
// PRE: e.Kind is KindRequest or KindQuery
// POST: The matching histogram is updated
func (c *Collector) Record(e Entry) {
	seconds := e.DurationMs / 1000
	switch e.Kind {
	case KindRequest:
		c.requests.WithLabelValues(e.Path, strconv.Itoa(e.StatusCode)).Observe(seconds)
	case KindQuery:
		c.queries.WithLabelValues(e.Path).Observe(seconds)
	}
	atomic.AddInt64(&c.count, 1)
}

// RecordDecision counts one check-in decision. code is empty for admissions.
func (c *Collector) RecordDecision(status, code string) {
	c.decisions.WithLabelValues(status, code).Inc()
}

// RecordNotice counts one notice outcome.
func (c *Collector) RecordNotice(kind, outcome string, n int) {
	if n <= 0 {
		return
	}
	c.notices.WithLabelValues(kind, outcome).Add(float64(n))
}

// TotalRecorded returns the number of timing entries observed.
func (c *Collector) TotalRecorded() int64 {
	return atomic.LoadInt64(&c.count)
}

// Registry exposes the underlying registry for gathering in tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
