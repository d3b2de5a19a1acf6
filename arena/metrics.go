package arena

import "github.com/prometheus/client_golang/prometheus"

var (
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "arena",
			Subsystem: "sim",
			Name:      "tick_duration",
			Help:      "Wall time spent advancing one simulation tick.",
		},
	)
	playersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "arena",
			Subsystem: "sim",
			Name:      "players",
			Help:      "Players currently registered in the world.",
		},
	)
	pelletsConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "sim",
			Name:      "pellets_consumed",
			Help:      "Pellets consumed since process start.",
		},
	)
	snapshotsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "sim",
			Name:      "snapshots_dropped",
			Help:      "Snapshots dropped due to saturated session queues.",
		},
	)
)

func init() {
	prometheus.MustRegister(tickDuration, playersGauge, pelletsConsumed, snapshotsDropped)
}
