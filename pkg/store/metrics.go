package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOperations tracks store calls by backend and operation
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of tracking set store operations",
		},
		[]string{"backend", "operation"}, // "load", "save", "delete"
	)

	// StoreErrors tracks failed store calls
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Total number of tracking set store errors",
		},
		[]string{"backend", "operation"},
	)

	// StoreEntities tracks the number of apps in the store after the last load
	StoreEntities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_entities",
			Help: "Number of tracked apps in the store at last load",
		},
		[]string{"backend"},
	)
)

func observe(backend, operation string, err error) {
	StoreOperations.WithLabelValues(backend, operation).Inc()
	if err != nil {
		StoreErrors.WithLabelValues(backend, operation).Inc()
	}
}
