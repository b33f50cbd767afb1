package acquire

import "github.com/prometheus/client_golang/prometheus"

var (
	downloadsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "safeguardd",
			Subsystem: "acquire",
			Name:      "downloads_started_total",
			Help:      "Total artifact downloads started",
		},
	)

	downloadsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safeguardd",
			Subsystem: "acquire",
			Name:      "downloads_finished_total",
			Help:      "Total artifact downloads finished, by outcome",
		},
		[]string{"outcome"},
	)

	downloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "safeguardd",
			Subsystem: "acquire",
			Name:      "download_bytes_total",
			Help:      "Total bytes received across artifact transfers",
		},
	)
)

func init() {
	prometheus.MustRegister(downloadsStarted, downloadsFinished, downloadBytes)
}
