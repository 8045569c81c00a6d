package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refresh_sessions_total",
		Help: "Total number of refresh sessions by mode",
	}, []string{"mode"})

	refreshSessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "refresh_session_duration_seconds",
		Help:    "Duration of refresh sessions by mode",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"mode"})

	refreshRoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refresh_rounds_total",
		Help: "Total number of refresh rounds run",
	})

	refreshOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refresh_outcomes_total",
		Help: "Total number of per-app outcomes by kind",
	}, []string{"kind"}) // "success", "transient", "fatal"

	refreshInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "refresh_in_flight",
		Help: "Number of per-app tasks currently running",
	})
)
