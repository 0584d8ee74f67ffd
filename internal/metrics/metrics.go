// Package metrics exposes Prometheus collectors for the aggregator service.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	simulationsTotal           *prometheus.CounterVec
	simulationsActive          prometheus.Gauge
	simulationDurationSeconds  prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		simulationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_simulations_total",
				Help: "Total number of simulations run, labeled by result.",
			},
			[]string{"result"},
		)

		simulationsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "aggregator_simulations_active",
				Help: "Number of simulations currently running.",
			},
		)

		simulationDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aggregator_simulation_duration_seconds",
				Help:    "Histogram of simulation wall times.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SimulationStarted increments the active simulations gauge.
func SimulationStarted() {
	simulationsActive.Inc()
}

// SimulationFinished records the result and wall time of one simulation.
func SimulationFinished(result string, duration time.Duration) {
	simulationsActive.Dec()
	simulationsTotal.WithLabelValues(result).Inc()
	simulationDurationSeconds.Observe(duration.Seconds())
}
