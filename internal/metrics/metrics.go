// Package metrics exposes Prometheus collectors for the HTTP API and the
// listing pipeline.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketplace-service/internal/cache"
	"marketplace-service/internal/fields"
)

// Metrics owns a registry so tests can create independent instances.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	listingDuration *prometheus.HistogramVec
	objectMoves     *prometheus.CounterVec
}

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route", "status"},
		),
		listingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "product_listing_duration_seconds",
				Help:    "Time spent composing product listings.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"filtered", "sorted"},
		),
		objectMoves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "object_moves_total",
				Help: "Photo objects moved from the temporary to the public bucket.",
			},
			[]string{"result"},
		),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.listingDuration,
		m.objectMoves,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records count and latency per chi route pattern. Unmatched
// requests are labelled "unmatched" so raw paths never become label values.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordRequest(r.Method, route, status, time.Since(start))
	})
}

// RecordRequest records one finished HTTP request.
func (m *Metrics) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
	m.requestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveListing records how long one product listing took.
func (m *Metrics) ObserveListing(filtered, sorted bool, duration time.Duration) {
	m.listingDuration.WithLabelValues(strconv.FormatBool(filtered), strconv.FormatBool(sorted)).Observe(duration.Seconds())
}

// RecordObjectMove counts one temp-to-public move.
func (m *Metrics) RecordObjectMove(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.objectMoves.WithLabelValues(result).Inc()
}

// InstrumentStorage counts the moves performed through s.
func (m *Metrics) InstrumentStorage(s fields.ObjectStorage) fields.ObjectStorage {
	return &instrumentedStorage{ObjectStorage: s, m: m}
}

type instrumentedStorage struct {
	fields.ObjectStorage
	m *Metrics
}

func (s *instrumentedStorage) Move(ctx context.Context, key string) error {
	err := s.ObjectStorage.Move(ctx, key)
	s.m.RecordObjectMove(err)
	return err
}

// CacheStats is satisfied by *cache.Cache.
type CacheStats interface {
	GetStats() cache.StatsSnapshot
}

// RegisterCache exposes the cumulative counters of the field definition cache.
func (m *Metrics) RegisterCache(c CacheStats) {
	m.registry.MustRegister(&cacheCollector{
		stats: c,
		ops: prometheus.NewDesc(
			"field_definition_cache_operations_total",
			"Field definition cache operations by outcome.",
			[]string{"op"}, nil,
		),
	})
}

type cacheCollector struct {
	stats CacheStats
	ops   *prometheus.Desc
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ops
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.GetStats()
	for op, v := range map[string]uint64{
		"hit":    s.Hits,
		"miss":   s.Misses,
		"set":    s.Sets,
		"delete": s.Deletes,
		"error":  s.Errors,
	} {
		ch <- prometheus.MustNewConstMetric(c.ops, prometheus.CounterValue, float64(v), op)
	}
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	}
	return "unknown"
}
