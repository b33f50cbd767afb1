package safety

import "github.com/prometheus/client_golang/prometheus"

var complianceInjections = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "safeguardd",
		Subsystem: "safety",
		Name:      "injections_total",
		Help:      "Compliance post-processing steps applied to responses",
	},
	[]string{"step"},
)

func init() {
	prometheus.MustRegister(complianceInjections)
}

func countAnnotation(ann Annotation) {
	if ann.EmergencyInjected {
		complianceInjections.WithLabelValues("emergency").Inc()
	}
	if ann.MeshInjected {
		complianceInjections.WithLabelValues("mesh").Inc()
	}
	if ann.Truncated {
		complianceInjections.WithLabelValues("truncate").Inc()
	}
}
