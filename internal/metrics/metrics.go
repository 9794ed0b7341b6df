// Package metrics registers the Prometheus counters and gauges the
// worker loops and engines report to, exposed by internal/httpapi's
// /metrics endpoint. Grounded on the ops-surface shape of
// janitrai-scoop's backend/internal/httpapi server, adapted from a
// JSON stats endpoint to Prometheus collectors since the pack's
// client_golang dependency has no home elsewhere in Argus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_queue_claims_total",
			Help: "Queue items claimed, by queue kind and worker role.",
		},
		[]string{"queue_kind", "role"},
	)

	QueueRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_queue_retries_total",
			Help: "Queue items released for retry, by queue kind and error kind.",
		},
		[]string{"queue_kind", "error_kind"},
	)

	QueueDeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_queue_dead_lettered_total",
			Help: "Queue items dead-lettered after exhausting retries, by queue kind.",
		},
		[]string{"queue_kind"},
	)

	SimilarityScoresObserved = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "argus_similarity_score",
			Help:    "Combined similarity score (S) observed between article pairs.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"role"},
	)

	ClusterAssignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cluster_assignments_total",
			Help: "Article-to-cluster assignments, split by whether a new cluster was created.",
		},
		[]string{"outcome"},
	)

	ClusterMergesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_cluster_merges_total",
			Help: "Clusters merged by the merge scan.",
		},
	)

	AnalysisFallbackActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_analysis_fallback_active",
			Help: "1 while the Analysis Worker is temporarily acting as the Decision Worker.",
		},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "argus_llm_request_duration_seconds",
			Help:    "LLM request latency, by call shape.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"shape"},
	)
)

// Registry bundles every Argus collector so cmd/argus can register them
// in one call and internal/httpapi can point promhttp at it.
func Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		QueueClaimsTotal,
		QueueRetriesTotal,
		QueueDeadLetteredTotal,
		SimilarityScoresObserved,
		ClusterAssignmentsTotal,
		ClusterMergesTotal,
		AnalysisFallbackActive,
		LLMRequestDuration,
	)
	return reg
}
