// Package metrics exposes the Prometheus collectors for provider
// failover and background-worker activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderAttempts counts each Provider Registry attempt, labeled by
	// provider name and outcome ("success"/"failure").
	ProviderAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskpet",
		Subsystem: "llm",
		Name:      "provider_attempts_total",
		Help:      "Total Provider Registry attempts per provider and outcome.",
	}, []string{"provider", "outcome"})

	// WorkerTickDuration observes how long each background worker tick
	// takes to run.
	WorkerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "deskpet",
		Subsystem: "worker",
		Name:      "tick_duration_seconds",
		Help:      "Duration of each background worker tick.",
		Buckets:   prometheus.DefBuckets,
	})

	// SummariesProcessed counts session summary-queue drains, labeled by
	// outcome ("summarized"/"skipped"/"failed").
	SummariesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskpet",
		Subsystem: "worker",
		Name:      "summaries_processed_total",
		Help:      "Session summaries processed by the background worker.",
	}, []string{"outcome"})

	// ProfilesRefreshed counts profile-refresh passes, labeled by outcome.
	ProfilesRefreshed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskpet",
		Subsystem: "worker",
		Name:      "profiles_refreshed_total",
		Help:      "Profile refresh passes completed by the background worker.",
	}, []string{"outcome"})
)

// OnFailover is passed to llm.NewRegistry to record each provider attempt.
func OnFailover(providerName string, succeeded bool) {
	outcome := "failure"
	if succeeded {
		outcome = "success"
	}
	ProviderAttempts.WithLabelValues(providerName, outcome).Inc()
}
