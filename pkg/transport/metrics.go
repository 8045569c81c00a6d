package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for relay resolution.
var (
	relayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "Total relay requests by relay and outcome",
	}, []string{"relay", "outcome"})

	relayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_request_duration_seconds",
		Help:    "Relay request duration in seconds by relay",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"relay"})

	relayFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_failures_total",
		Help: "Total relay failures by kind",
	}, []string{"kind"})

	relayRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_retries_total",
		Help: "Total same-relay retry attempts by failure kind",
	}, []string{"kind"})

	relayExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_exhausted_total",
		Help: "Total resolve calls where every relay failed",
	})

	relayBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_breaker_state",
		Help: "Relay circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"relay"})

	relayCooldownSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_cooldown_skips_total",
		Help: "Total relay attempts skipped because the relay was cooling down",
	}, []string{"relay"})
)
