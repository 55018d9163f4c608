// Package coordinator wires normalize, embeddings, store, classify and
// cluster into the single checkDuplicate entry point and its batch variant.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/factengine/claimdedupe/internal/dedupe/apperr"
	"github.com/factengine/claimdedupe/internal/dedupe/classify"
	"github.com/factengine/claimdedupe/internal/dedupe/cluster"
	"github.com/factengine/claimdedupe/internal/dedupe/embeddings"
	"github.com/factengine/claimdedupe/internal/dedupe/normalize"
	"github.com/factengine/claimdedupe/internal/dedupe/store"
	"github.com/factengine/claimdedupe/internal/platform/observability"
)

// Embedder is the coordinator's view of the embedding registry.
type Embedder interface {
	GetEmbeddingWithMetadata(ctx context.Context, text string) (embeddings.EmbeddingResult, error)
	ModelForProvider(name embeddings.ProviderName) string
}

// CanonicalClaim identifies the canonical member of a cluster.
type CanonicalClaim struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Response is the coordinator's answer to a single check-duplicate call.
type Response struct {
	Hash           string           `json:"hash"`
	ClaimID        int64            `json:"claim_id"`
	Created        bool             `json:"created"`
	EmbeddingModel string           `json:"embedding_model"`
	Provider       string           `json:"provider"`
	Classification classify.Band    `json:"classification"`
	MaxSimilarity  float64          `json:"max_similarity"`
	Similar        []store.Neighbor `json:"similar"`
	ClusterID      int64            `json:"cluster_id"`
	CanonicalClaim CanonicalClaim   `json:"canonical_claim"`
	TimingMS       int64            `json:"timing_ms"`
}

// Coordinator implements checkDuplicate (4.H).
type Coordinator struct {
	store      store.ClaimStore
	embedder   Embedder
	assigner   *cluster.Assigner
	thresholds classify.Thresholds
	joinThresh float64
}

// New builds a Coordinator. joinThreshold selects the similarity cut-off the
// cluster assigner uses; the spec recommends T_near (thresholds.NearDuplicate).
func New(s store.ClaimStore, embedder Embedder, thresholds classify.Thresholds, joinThreshold float64) *Coordinator {
	return &Coordinator{
		store:      s,
		embedder:   embedder,
		assigner:   cluster.New(s),
		thresholds: thresholds,
		joinThresh: joinThreshold,
	}
}

// CheckDuplicate runs the full pipeline for one claim text and returns the
// assembled response. The caller (httpapi) defaults k to 5 and rejects values
// outside 1..50 before calling.
func (c *Coordinator) CheckDuplicate(ctx context.Context, text string, k int) (resp Response, err error) {
	start := time.Now()

	defer func() {
		observability.DedupeRequestLatency.Observe(time.Since(start).Seconds())

		status := "ok"
		if err != nil {
			status = "error"
		}

		observability.DedupeRequests.WithLabelValues(status).Inc()
	}()

	hash := normalize.Hash(text)

	var (
		embedResult embeddings.EmbeddingResult
		embedErr    error
	)

	embed := func(ctx context.Context) ([]float32, string, error) {
		embedResult, embedErr = c.embedder.GetEmbeddingWithMetadata(ctx, text)
		if embedErr != nil {
			return nil, "", fmt.Errorf("%w: %w", apperr.ErrEmbeddingProviderDown, embedErr)
		}

		model := c.embedder.ModelForProvider(embedResult.Provider)

		return embedResult.Vector, model, nil
	}

	claimID, created, err := c.store.UpsertClaim(ctx, text, embed)
	if err != nil {
		return Response{}, fmt.Errorf("upsert claim: %w", err)
	}

	neighbors, err := c.store.TopK(ctx, claimID, k)
	if err != nil {
		return Response{}, fmt.Errorf("top-k search: %w", err)
	}

	var (
		maxSim    float64
		bestMatch *int64
	)

	if len(neighbors) > 0 {
		maxSim = neighbors[0].Similarity
		id := neighbors[0].ClaimID
		bestMatch = &id
	}

	band := classify.Classify(maxSim, c.thresholds)
	observability.DedupeClassifications.WithLabelValues(string(band)).Inc()

	clusterResult, assigned, err := c.assigner.Assign(ctx, claimID, bestMatch, maxSim, c.joinThresh)
	if err != nil {
		return Response{}, fmt.Errorf("assign cluster: %w", err)
	}

	observability.ClusterAssignments.WithLabelValues(clusterOutcome(clusterResult, claimID, assigned)).Inc()

	provider := string(embedResult.Provider)
	model := c.embedder.ModelForProvider(embedResult.Provider)

	if !created {
		// No embedding was computed this request; report what was recorded
		// when the claim was first stored.
		model, err = c.store.EmbeddingModel(ctx, claimID)
		if err != nil {
			return Response{}, fmt.Errorf("read stored embedding model: %w", err)
		}

		provider = ""
	}

	return Response{
		Hash:           hash,
		ClaimID:        claimID,
		Created:        created,
		EmbeddingModel: model,
		Provider:       provider,
		Classification: band,
		MaxSimilarity:  maxSim,
		Similar:        neighbors,
		ClusterID:      clusterResult.ID,
		CanonicalClaim: CanonicalClaim{
			ID:   clusterResult.CanonicalClaimID,
			Text: clusterResult.CanonicalClaimText,
		},
		TimingMS: time.Since(start).Milliseconds(),
	}, nil
}

// clusterOutcome labels a cluster assignment for the ClusterAssignments
// metric: idempotent (already a member), created (claimID became canonical
// of a new cluster), or joined (claimID attached to someone else's cluster).
func clusterOutcome(c store.Cluster, claimID int64, assigned bool) string {
	if !assigned {
		return "idempotent"
	}

	if c.CanonicalClaimID == claimID {
		return "created"
	}

	return "joined"
}

// CheckDuplicateBatch applies CheckDuplicate to each text in order, failing
// the whole request (per §7, no partial success) on the first error.
func (c *Coordinator) CheckDuplicateBatch(ctx context.Context, texts []string, k int) ([]Response, error) {
	out := make([]Response, 0, len(texts))

	for i, text := range texts {
		resp, err := c.CheckDuplicate(ctx, text, k)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}

		out = append(out, resp)
	}

	return out, nil
}
