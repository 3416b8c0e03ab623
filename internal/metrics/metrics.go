package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "midam"
	subsystem = "chat"
)

// Turn outcomes.
const (
	OutcomeCompleted       = "completed"
	OutcomeGenerationError = "generation_error"
	OutcomeDisconnected    = "disconnected"
	OutcomeDeadLettered    = "dead_lettered"
	OutcomeHistoryError    = "history_error"
)

// Title outcomes.
const (
	TitleRenamed = "renamed"
	TitleEmpty   = "empty"
	TitleFailed  = "failed"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turns_total",
			Help:      "Chat turns handled, by outcome",
		},
		[]string{"outcome"},
	)

	FragmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fragments_total",
			Help:      "Non-empty model fragments received",
		},
	)

	FinalizeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "finalize_failures_total",
			Help:      "Assistant turns that could not be stored after retries",
		},
	)

	DeadLettersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dead_letters_total",
			Help:      "Assistant turns written to the dead letter store",
		},
	)

	TitlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "titles_total",
			Help:      "Chat title generations, by outcome",
		},
		[]string{"outcome"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turn_duration_seconds",
			Help:      "Time from receiving a turn until its reply is stored",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route and status",
		},
		[]string{"method", "route", "status"},
	)
)
