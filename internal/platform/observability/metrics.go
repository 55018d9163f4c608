package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DedupeRequests counts check-duplicate requests by outcome.
	DedupeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dedupe_requests_total",
		Help: "Total number of check-duplicate requests handled",
	}, []string{"status"})

	// DedupeRequestLatency tracks end-to-end coordinator latency.
	DedupeRequestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dedupe_request_duration_seconds",
		Help:    "Duration of a full check-duplicate request",
		Buckets: prometheus.DefBuckets,
	})

	// DedupeClassifications counts requests by classification band.
	DedupeClassifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dedupe_classification_total",
		Help: "Total number of requests by classification band",
	}, []string{"band"})

	// ClusterAssignments counts cluster assignment outcomes.
	ClusterAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dedupe_cluster_assignments_total",
		Help: "Total number of cluster assignment outcomes",
	}, []string{"outcome"})

	// EmbeddingRequests counts embedding provider calls by outcome.
	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedding_provider_requests_total",
		Help: "Total number of embedding provider requests",
	}, []string{"provider", "model", "status"})

	// EmbeddingLatency tracks embedding provider call duration.
	EmbeddingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embedding_provider_latency_seconds",
		Help:    "Latency of embedding provider requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "model"})

	// EmbeddingTokens estimates token usage per provider/model.
	EmbeddingTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedding_provider_tokens_total",
		Help: "Estimated number of tokens sent to the embedding provider",
	}, []string{"provider", "model"})

	// EmbeddingEstimatedCost tracks estimated spend in millicents.
	EmbeddingEstimatedCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedding_provider_estimated_cost_millicents_total",
		Help: "Estimated embedding cost in millicents (0.001 cents)",
	}, []string{"provider", "model"})

	// EmbeddingFallbacks counts registry fallback events between providers.
	EmbeddingFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedding_provider_fallbacks_total",
		Help: "Total number of embedding provider fallback events",
	}, []string{"from_provider", "to_provider"})

	// EmbeddingProviderAvailable reports provider availability (0/1).
	EmbeddingProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "embedding_provider_available",
		Help: "Whether an embedding provider is currently available (0=no, 1=yes)",
	}, []string{"provider"})

	// EmbeddingCircuitBreakerOpen reports circuit breaker state per provider.
	EmbeddingCircuitBreakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "embedding_circuit_breaker_open",
		Help: "Whether the embedding circuit breaker is open for a provider (0=closed, 1=open)",
	}, []string{"provider"})
)
