// Package metrics holds the Prometheus collectors for marketsift. A nil
// *Registry is a valid no-op sink so library callers can opt out entirely.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all marketsift metrics plus the underlying Prometheus
// registry they are registered against.
type Registry struct {
	prom *prometheus.Registry

	// Extraction pipeline
	ExtractAttempts *prometheus.CounterVec
	ExtractDuration *prometheus.HistogramVec
	FallbacksUsed   *prometheus.CounterVec
	AttemptsPerCall *prometheus.HistogramVec

	// Multi-source merging
	MergeSources   *prometheus.HistogramVec
	MergeConflicts *prometheus.CounterVec

	// Adapter health
	AdapterReliability *prometheus.GaugeVec

	// Cache performance
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// HTTP surface
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
}

// New builds a registry backed by its own Prometheus registry, so tests and
// embedders never collide with globally registered collectors.
func New() *Registry {
	r := &Registry{
		prom: prometheus.NewRegistry(),

		ExtractAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketsift_extract_attempts_total",
				Help: "Extraction attempts by marketplace, channel and outcome",
			},
			[]string{"marketplace", "channel", "outcome"},
		),

		ExtractDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketsift_extract_duration_seconds",
				Help:    "Duration of individual extraction attempts",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"marketplace", "channel"},
		),

		FallbacksUsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketsift_fallbacks_total",
				Help: "Calls where the first attempted source did not produce the result",
			},
			[]string{"marketplace"},
		),

		AttemptsPerCall: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketsift_attempts_per_call",
				Help:    "Number of sources tried per extraction call",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
			[]string{"marketplace"},
		),

		MergeSources: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketsift_merge_sources",
				Help:    "Number of successful sources feeding each multi-source merge",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
			[]string{"marketplace"},
		),

		MergeConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketsift_merge_conflicts_total",
				Help: "Field conflicts detected during multi-source merges",
			},
			[]string{"marketplace", "field"},
		),

		AdapterReliability: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketsift_adapter_reliability",
				Help: "Estimated reliability per adapter (0.0 to 1.0)",
			},
			[]string{"marketplace", "channel"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketsift_cache_hits_total",
				Help: "Cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketsift_cache_misses_total",
				Help: "Cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketsift_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"route", "method"},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketsift_http_requests_total",
				Help: "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
	}

	r.prom.MustRegister(
		r.ExtractAttempts,
		r.ExtractDuration,
		r.FallbacksUsed,
		r.AttemptsPerCall,
		r.MergeSources,
		r.MergeConflicts,
		r.AdapterReliability,
		r.CacheHits,
		r.CacheMisses,
		r.RequestDuration,
		r.RequestsTotal,
	)

	return r
}

// ObserveAttempt records one extraction attempt.
func (r *Registry) ObserveAttempt(marketplace, channel string, success bool, d time.Duration) {
	if r == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.ExtractAttempts.WithLabelValues(marketplace, channel, outcome).Inc()
	r.ExtractDuration.WithLabelValues(marketplace, channel).Observe(d.Seconds())
}

// ObserveCall records the shape of a completed extraction call.
func (r *Registry) ObserveCall(marketplace string, attempts int, fallbackUsed bool) {
	if r == nil {
		return
	}
	r.AttemptsPerCall.WithLabelValues(marketplace).Observe(float64(attempts))
	if fallbackUsed {
		r.FallbacksUsed.WithLabelValues(marketplace).Inc()
	}
}

// ObserveMerge records a multi-source merge with its conflicting fields.
func (r *Registry) ObserveMerge(marketplace string, sources int, conflictFields []string) {
	if r == nil {
		return
	}
	r.MergeSources.WithLabelValues(marketplace).Observe(float64(sources))
	for _, field := range conflictFields {
		r.MergeConflicts.WithLabelValues(marketplace, field).Inc()
	}
}

// SetAdapterReliability publishes an adapter's estimated reliability.
func (r *Registry) SetAdapterReliability(marketplace, channel string, reliability float64) {
	if r == nil {
		return
	}
	r.AdapterReliability.WithLabelValues(marketplace, channel).Set(reliability)
}

// RecordCacheHit counts a hit for the given cache type.
func (r *Registry) RecordCacheHit(cacheType string) {
	if r == nil {
		return
	}
	r.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss counts a miss for the given cache type.
func (r *Registry) RecordCacheMiss(cacheType string) {
	if r == nil {
		return
	}
	r.CacheMisses.WithLabelValues(cacheType).Inc()
}

// ObserveRequest records an HTTP request against the route pattern.
func (r *Registry) ObserveRequest(route, method, code string, d time.Duration) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(route, method, code).Inc()
	r.RequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return nil
	}
	return r.prom
}
