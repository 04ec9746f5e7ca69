package streamsync

import "github.com/prometheus/client_golang/prometheus"

var (
	compositesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "collectord",
			Subsystem: "sync",
			Name:      "composites_total",
			Help:      "Composite events assembled",
		},
	)

	droppedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collectord",
			Subsystem: "sync",
			Name:      "dropped_events_total",
			Help:      "Producer events dropped before alignment, by reason",
		},
		[]string{"reason"},
	)

	producersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "collectord",
			Subsystem: "sync",
			Name:      "producers",
			Help:      "Producer connections in the table, active or draining",
		},
	)
)

func init() {
	prometheus.MustRegister(compositesTotal, droppedEventsTotal, producersGauge)
}
