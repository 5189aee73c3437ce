// Package metrics exposes Prometheus collectors for dataset refreshes,
// dashboard queries and exports.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insight/internal/dataset"
)

const namespace = "insight"

type Metrics struct {
	registry *prometheus.Registry

	refreshTotal      *prometheus.CounterVec
	refreshDuration   prometheus.Histogram
	snapshotRecords   prometheus.Gauge
	snapshotTimestamp prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	exportsTotal      *prometheus.CounterVec
	rateLimited       prometheus.Counter
	suspicious        prometheus.Counter
}

// Ensure interface conformance
var _ dataset.Observer = (*Metrics)(nil)

// New registers every collector on a private registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_refresh_total",
			Help:      "Dataset refresh attempts by result.",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_refresh_duration_seconds",
			Help:      "Time spent fetching and normalizing the dataset.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		snapshotRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_records",
			Help:      "Records in the current snapshot.",
		}),
		snapshotTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_fetched_timestamp_seconds",
			Help:      "Unix time the current snapshot was fetched.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Exports served by format.",
		}, []string{"format"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		suspicious: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_suspicious_requests_total",
			Help:      "Requests matching a known scanner pattern.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.refreshTotal,
		m.refreshDuration,
		m.snapshotRecords,
		m.snapshotTimestamp,
		m.httpRequests,
		m.httpDuration,
		m.exportsTotal,
		m.rateLimited,
		m.suspicious,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRefresh(d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.refreshTotal.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSnapshot(snap *dataset.Snapshot) {
	m.snapshotRecords.Set(float64(snap.Len()))
	m.snapshotTimestamp.Set(float64(snap.FetchedAt().Unix()))
}

func (m *Metrics) ObserveExport(format string) {
	m.exportsTotal.WithLabelValues(format).Inc()
}

func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

func (m *Metrics) Suspicious() {
	m.suspicious.Inc()
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
