// Package metrics exposes the monitor's Prometheus metrics.
// All metrics are defined in their respective packages (transport, ratelimit,
// steamapi, refresh, notify, store) via promauto and register themselves
// with the default registry.
//
// This package provides the HTTP handler and a reference of all metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the monitor.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry Handler serves.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Relay Metrics (pkg/transport):
//   - relay_requests_total{relay, outcome} (Counter): Relay attempts by outcome (ok or failure kind)
//   - relay_request_duration_seconds{relay} (Histogram): Relay request duration
//   - relay_failures_total{kind} (Counter): Failed attempts by failure kind
//   - relay_retries_total{kind} (Counter): Retries by failure kind
//   - relay_exhausted_total (Counter): Resolves where every relay failed
//   - relay_breaker_state{relay} (Gauge): 0 closed, 1 half-open, 2 open
//   - relay_cooldown_skips_total{relay} (Counter): Attempts skipped while cooling down
//
// Cooldown Metrics (pkg/ratelimit):
//   - relay_cooldowns_total{relay} (Counter): Cooldowns started after 403/429
//   - relay_cooldown_seconds{relay} (Gauge): Length of the latest cooldown
//
// Upstream Metrics (pkg/steamapi):
//   - steam_fetch_degraded_total{attribute} (Counter): Activity/live count lookups that fell back to 0
//   - steam_details_lookups_total{result} (Counter): Detail lookups by result (ok, invalid, transient)
//
// Session Metrics (pkg/refresh):
//   - refresh_sessions_total{mode} (Counter): Sessions by mode
//   - refresh_session_duration_seconds{mode} (Histogram): Session duration
//   - refresh_rounds_total (Counter): Rounds run
//   - refresh_outcomes_total{kind} (Counter): Task outcomes (success, transient, fatal)
//   - refresh_in_flight (Gauge): Tasks currently running
//
// Notification Metrics (pkg/notify):
//   - notifications_total{result} (Counter): Deliveries by result (sent, duplicate, failed)
//
// Store Metrics (pkg/store):
//   - store_operations_total{backend, operation} (Counter): Store calls
//   - store_errors_total{backend, operation} (Counter): Failed store calls
//   - store_entities{backend} (Gauge): Apps in the store at last load
//
// Example Prometheus Queries:
//
//   # Relay success rate
//   sum by (relay) (rate(relay_requests_total{outcome="ok"}[5m])) /
//   sum by (relay) (rate(relay_requests_total[5m]))
//
//   # Open breakers
//   relay_breaker_state == 2
//
//   # Transient outcome ratio
//   rate(refresh_outcomes_total{kind="transient"}[1h]) / rate(refresh_outcomes_total[1h])
//
//   # P95 session duration
//   histogram_quantile(0.95, rate(refresh_session_duration_seconds_bucket[1d]))
