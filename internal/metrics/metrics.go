// Package metrics exposes Prometheus collectors for the vectorizer service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	conversionsTotal           *prometheus.CounterVec
	conversionDurationSeconds  prometheus.Histogram
	gateRunning                prometheus.Gauge
	gateQueued                 prometheus.Gauge
	gateRejectionsTotal        prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		conversionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vectorizer_conversions_total",
				Help: "Total number of conversion jobs, labeled by outcome.",
			},
			[]string{"status"},
		)

		conversionDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectorizer_conversion_duration_seconds",
				Help:    "Histogram of end-to-end conversion latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		gateRunning = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectorizer_gate_running",
				Help: "Number of conversion jobs currently holding a gate slot.",
			},
		)

		gateQueued = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectorizer_gate_queued",
				Help: "Number of conversion jobs waiting for a gate slot.",
			},
		)

		gateRejectionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectorizer_gate_rejections_total",
				Help: "Total jobs rejected because the gate queue was full.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveConversion records one finished (or failed) conversion job.
// A no-op until Init has run, so library callers never need a registry.
func ObserveConversion(status string, duration time.Duration) {
	if conversionsTotal == nil {
		return
	}
	conversionsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		conversionDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveGate updates the gate occupancy gauges.
func ObserveGate(running, queued int) {
	if gateRunning == nil {
		return
	}
	gateRunning.Set(float64(running))
	gateQueued.Set(float64(queued))
}

// ObserveGateRejection counts a Busy rejection.
func ObserveGateRejection() {
	if gateRejectionsTotal == nil {
		return
	}
	gateRejectionsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
