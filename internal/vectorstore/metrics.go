package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NodesTotal is the node count of the most recently changed store.
	NodesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "nodes",
			Help:      "Number of nodes held by the store",
		},
	)

	// OperationDuration tracks store operation latency.
	// Labels: op (add, add_document, delete, get, query, search, persist, load, export)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// ErrorsTotal counts failed operations.
	// Labels: op, kind (not_found, dimension_mismatch, embedding, persistence, ...)
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "errors_total",
			Help:      "Total number of failed vector store operations",
		},
		[]string{"op", "kind"},
	)
)

// observe records the duration and outcome of one operation.
func observe(op string, start time.Time, err error) {
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		ErrorsTotal.WithLabelValues(op, errorKind(err)).Inc()
	}
}
