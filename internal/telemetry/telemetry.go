// Package telemetry owns the engine's prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksEvaluated counts scheduler ticks by mode (critical/standard).
	TicksEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fedpulse_scheduler_ticks_total",
		Help: "Scheduler ticks evaluated, labelled by mode.",
	}, []string{"mode"})

	// RunsFired counts fired pipeline runs by context tag.
	RunsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fedpulse_runs_fired_total",
		Help: "Pipeline runs fired, labelled by context.",
	}, []string{"context"})

	// RunsFailed counts fired runs that ended in a logged failure.
	RunsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedpulse_runs_failed_total",
		Help: "Fired pipeline runs that failed.",
	})

	// EnrichmentFallbacks counts citation references left unresolved.
	EnrichmentFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedpulse_enrichment_fallbacks_total",
		Help: "Citation article references that could not be resolved to a stored article.",
	})

	// TopicsFailed counts parallel-pipeline topics that produced no result.
	TopicsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedpulse_topics_failed_total",
		Help: "Topic stages that failed within otherwise successful parallel runs.",
	})
)
