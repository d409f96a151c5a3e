package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	outcomeCommitted = "committed"
	outcomeConflict  = "conflict"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

var (
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_section_mutations_total",
			Help: "Review section write operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	VersionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_section_version_conflicts_total",
			Help: "Saves rejected because the stored version had moved on",
		},
		[]string{"operation"},
	)

	RecalculatedSections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_section_recalculated_total",
			Help: "Sections visited by the aggregate repair pass, by result",
		},
		[]string{"result"},
	)
)
