package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks per-query execution activity, contributing to C11's
// statistics surface alongside cache.Metrics and dispatch-level counters.
type Metrics struct {
	Executions *prometheus.CounterVec
	Errors     *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cordal",
			Subsystem: "query",
			Name:      "executions_total",
			Help:      "Total number of query executions, by query name and cache outcome",
		}, []string{"query", "cache"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cordal",
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Total number of query execution errors, by query name",
		}, []string{"query"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cordal",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query execution duration, by query name and cache outcome",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"query", "cache"}),
	}
}
