package collector

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "collectord",
			Subsystem: "hub",
			Name:      "events_received_total",
			Help:      "Total number of non-empty inbound event payloads",
		},
	)

	bytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "collectord",
			Subsystem: "hub",
			Name:      "bytes_received_total",
			Help:      "Total size of inbound event payloads in bytes",
		},
	)

	decodeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "collectord",
			Subsystem: "hub",
			Name:      "decode_failures_total",
			Help:      "Inbound payloads the serializer could not decode",
		},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collectord",
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Push deliveries by kind (filtered, broadcast, skipped)",
		},
		[]string{"kind"},
	)

	pullRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collectord",
			Subsystem: "hub",
			Name:      "pull_requests_total",
			Help:      "Pull requests by answer (filtered, raw, empty)",
		},
		[]string{"answer"},
	)

	subscribersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "collectord",
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Registered subscribers",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsReceivedTotal, bytesReceivedTotal, decodeFailuresTotal,
		deliveriesTotal, pullRequestsTotal, subscribersGauge)
}
