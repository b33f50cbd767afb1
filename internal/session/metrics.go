package session

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "safeguardd",
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Total streaming sessions started",
		},
	)

	sessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safeguardd",
			Subsystem: "session",
			Name:      "finished_total",
			Help:      "Total streaming sessions finished, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(sessionsStarted, sessionsFinished)
}
