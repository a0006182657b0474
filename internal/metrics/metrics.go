// Package metrics holds the Prometheus collectors for both services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fraudguard"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	predictions        *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec
	modelFallbacks     *prometheus.CounterVec

	historyWrites *prometheus.CounterVec

	explanations        *prometheus.CounterVec
	explanationDuration *prometheus.HistogramVec

	rateLimited prometheus.Counter
}

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~65s
			},
			[]string{"method", "route"},
		),

		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prediction",
				Name:      "total",
				Help:      "Scored transactions by model and verdict",
			},
			[]string{"model", "fraud"},
		),
		predictionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "prediction",
				Name:      "duration_seconds",
				Help:      "Classifier latency including the latency floor",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"model"},
		),
		modelFallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prediction",
				Name:      "model_fallbacks_total",
				Help:      "Requests served by a different model than requested",
			},
			[]string{"requested", "used"},
		),

		historyWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "history",
				Name:      "writes_total",
				Help:      "Fraud history updates by result",
			},
			[]string{"result"},
		),

		explanations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "explanation",
				Name:      "total",
				Help:      "Explanation calls by outcome",
			},
			[]string{"outcome"},
		),
		explanationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "explanation",
				Name:      "duration_seconds",
				Help:      "Explanation call duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
			},
			[]string{"outcome"},
		),

		rateLimited: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObservePrediction records one classifier run.
func (m *Metrics) ObservePrediction(requested, used string, fraud bool, d time.Duration) {
	m.predictions.WithLabelValues(used, strconv.FormatBool(fraud)).Inc()
	m.predictionDuration.WithLabelValues(used).Observe(d.Seconds())
	if requested != used {
		m.modelFallbacks.WithLabelValues(requested, used).Inc()
	}
}

// ObserveHistoryWrite records a history update.
func (m *Metrics) ObserveHistoryWrite(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.historyWrites.WithLabelValues(result).Inc()
}

// ObserveExplanation records one explanation call.
func (m *Metrics) ObserveExplanation(outcome string, d time.Duration) {
	m.explanations.WithLabelValues(outcome).Inc()
	m.explanationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveRateLimited counts a rejected request.
func (m *Metrics) ObserveRateLimited() {
	m.rateLimited.Inc()
}

// WatchAuditWorker exports the audit worker totals, read from stats at
// scrape time. Call it at most once per Metrics.
func (m *Metrics) WatchAuditWorker(stats func() (processed, failed, alerts int64)) {
	f := promauto.With(m.registry)

	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "processed_total",
		Help:      "Scored predictions handled by the audit worker",
	}, func() float64 {
		processed, _, _ := stats()
		return float64(processed)
	})
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "failed_total",
		Help:      "Scored predictions the audit worker could not persist",
	}, func() float64 {
		_, failed, _ := stats()
		return float64(failed)
	})
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "alerts_total",
		Help:      "Recurring-fraud alerts published",
	}, func() float64 {
		_, _, alerts := stats()
		return float64(alerts)
	})
}

// WatchBusDrops exports the number of events the in-process bus dropped
// because a subscriber buffer was full.
func (m *Metrics) WatchBusDrops(dropped func() int64) {
	promauto.With(m.registry).NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "dropped_total",
		Help:      "Events dropped because a subscriber buffer was full",
	}, func() float64 { return float64(dropped()) })
}

// WatchCache exports the explanation cache hit and miss totals.
func (m *Metrics) WatchCache(counters func() (hits, misses int64)) {
	f := promauto.With(m.registry)
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Explanation cache hits",
	}, func() float64 {
		hits, _ := counters()
		return float64(hits)
	})
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Explanation cache misses",
	}, func() float64 {
		_, misses := counters()
		return float64(misses)
	})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
