package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors the in-memory counter snapshots into Prometheus series,
// following the promauto.With(reg)/*Vec labeled-by-key convention used
// throughout cache, events and query.
type Metrics struct {
	EndpointCalls    *prometheus.CounterVec
	EndpointDuration *prometheus.HistogramVec
	QueryCalls       *prometheus.CounterVec
	QueryRows        *prometheus.CounterVec
	DatabaseCalls    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EndpointCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cordal",
			Subsystem: "endpoint",
			Name:      "calls_total",
			Help:      "Endpoint invocations by endpoint key and outcome.",
		}, []string{"endpoint", "outcome"}),
		EndpointDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cordal",
			Subsystem: "endpoint",
			Name:      "duration_seconds",
			Help:      "Endpoint handling latency.",
		}, []string{"endpoint"}),
		QueryCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cordal",
			Subsystem: "query",
			Name:      "calls_total",
			Help:      "Query executions by query name, database and outcome.",
		}, []string{"query", "database", "outcome"}),
		QueryRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cordal",
			Subsystem: "query",
			Name:      "rows_returned_total",
			Help:      "Rows returned by query name.",
		}, []string{"query"}),
		DatabaseCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cordal",
			Subsystem: "database",
			Name:      "calls_total",
			Help:      "Connection acquisitions by database and outcome.",
		}, []string{"database", "outcome"}),
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
