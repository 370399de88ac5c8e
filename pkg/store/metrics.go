package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations tracks store calls by operation and status
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eld_store_operations_total",
			Help: "Result store operations by operation and status",
		},
		[]string{"operation", "status"}, // "save|get|latest", "ok|miss|error"
	)

	// StoredBytes tracks the size of the last record written per tenant
	StoredBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eld_store_record_bytes",
			Help: "Size in bytes of the latest stored record",
		},
		[]string{"tenant"},
	)
)
