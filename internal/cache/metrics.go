package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments shared by every named cache,
// ported from pkg/history/cache/manager.go's Metrics struct and relabeled
// by cache name instead of a single fixed subsystem.
type Metrics struct {
	Hits      *prometheus.CounterVec
	Misses    *prometheus.CounterVec
	Evictions *prometheus.CounterVec
	Errors    *prometheus.CounterVec
	Size      *prometheus.GaugeVec
	Latency   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Hits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cordal",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache_name", "layer"},
		),
		Misses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cordal",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache_name", "layer"},
		),
		Evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cordal",
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Total number of cache evictions",
			},
			[]string{"cache_name", "layer"},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cordal",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of cache errors",
			},
			[]string{"cache_name", "layer", "error_type"},
		),
		Size: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cordal",
				Subsystem: "cache",
				Name:      "size_entries",
				Help:      "Current number of entries in a cache",
			},
			[]string{"cache_name", "layer"},
		),
		Latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cordal",
				Subsystem: "cache",
				Name:      "operation_duration_seconds",
				Help:      "Cache operation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"cache_name", "layer", "operation", "status"},
		),
	}
}
