// Package store defines the persistence contract for claims, their
// embeddings, and cluster membership, and the two backend-adaptive
// operations (upsert-by-hash, top-k neighbor search) that the dedupe
// coordinator composes against it.
package store

import (
	"context"
	"time"
)

// Claim is an immutable stored utterance.
type Claim struct {
	ID          int64
	Text        string
	ContentHash string
	CreatedAt   time.Time
}

// Neighbor is a single result row from a top-k search.
type Neighbor struct {
	ClaimID    int64
	Text       string
	Similarity float64
}

// Cluster groups claims judged semantically equivalent around a canonical claim.
type Cluster struct {
	ID                 int64
	CanonicalClaimID   int64
	CanonicalClaimText string
}

// ClaimStore persists claims and their embeddings, and answers
// nearest-neighbor queries over them. Two backends implement it:
// a native pgvector-backed store and a JSON-serialized fallback used
// where the vector extension is unavailable (tests, minimal deployments).
type ClaimStore interface {
	// UpsertClaim looks up text by its content hash; on a miss it calls
	// embed to compute a vector, inserts the Claim and ClaimEmbedding in one
	// transaction, and returns created=true. On a hit it returns the
	// existing claim_id with created=false and never calls embed.
	UpsertClaim(ctx context.Context, text string, embed EmbedFunc) (claimID int64, created bool, err error)

	// TopK returns the k nearest stored claims to queryClaimID by cosine
	// similarity, excluding the query claim itself, ordered by similarity
	// descending then claim_id ascending.
	TopK(ctx context.Context, queryClaimID int64, k int) ([]Neighbor, error)

	// ClaimText returns the stored text for a claim_id.
	ClaimText(ctx context.Context, claimID int64) (string, error)

	// EmbeddingModel returns the model identifier recorded alongside
	// claimID's embedding, for responses where created=false and no new
	// embedding was computed this request.
	EmbeddingModel(ctx context.Context, claimID int64) (string, error)

	// ClusterOf returns the cluster a claim currently belongs to, if any.
	ClusterOf(ctx context.Context, claimID int64) (Cluster, bool, error)

	// CreateCluster creates a new cluster with canonicalClaimID as its
	// canonical member (similarity 1.0), retryable via ignore-on-conflict
	// membership semantics.
	CreateCluster(ctx context.Context, canonicalClaimID int64) (Cluster, error)

	// AddMember adds claimID to an existing cluster at the given
	// similarity. It is a no-op (not an error) if the membership row
	// already exists, per the conflict-safe insertion design note.
	AddMember(ctx context.Context, clusterID, claimID int64, similarity float64) error

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error
}

// EmbedFunc computes an embedding vector for text, used by UpsertClaim on a
// cache miss. It is the store's view of the embedding provider (module B);
// the store never imports the embeddings package directly so that either
// backend can be exercised with a stub in tests.
type EmbedFunc func(ctx context.Context) ([]float32, string, error)
