package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks event-bus activity, ported from
// internal/realtime/metrics.go's RealtimeMetrics.
type Metrics struct {
	EventsTotal     *prometheus.CounterVec
	ListenerErrors  *prometheus.CounterVec
	DispatchSeconds *prometheus.HistogramVec
	QueueDropped    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cordal",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published, by type",
		}, []string{"type"}),
		ListenerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cordal",
			Subsystem: "events",
			Name:      "listener_errors_total",
			Help:      "Total number of listener errors or panics, by type",
		}, []string{"type"}),
		DispatchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cordal",
			Subsystem: "events",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent fanning an event out to its listeners",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"type", "mode"}),
		QueueDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cordal",
			Subsystem: "events",
			Name:      "async_queue_dropped_total",
			Help:      "Total number of events dropped because the async queue was full",
		}),
	}
}
