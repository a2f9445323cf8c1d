package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// subjectDecisions counts assignment outcomes by action and the rule that
	// produced them.
	subjectDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_decisions_total",
			Help: "Assignment decisions by action and reason.",
		},
		[]string{"action", "reason"},
	)

	subjectMerges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subject_merges_total",
			Help: "Micro subjects folded into an older subject.",
		},
	)

	// subjectMeta counts metadata synthesis attempts; result is ok|fail.
	subjectMeta = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_meta_total",
			Help: "Metadata synthesis attempts by result.",
		},
		[]string{"result"},
	)

	subjectBackgroundDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_background_dropped_total",
			Help: "Background jobs skipped because one was already running for the channel.",
		},
		[]string{"job"},
	)
)

func init() {
	prometheus.MustRegister(subjectDecisions, subjectMerges, subjectMeta, subjectBackgroundDropped)
}
