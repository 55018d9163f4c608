package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/factengine/claimdedupe/internal/dedupe/apperr"
	"github.com/factengine/claimdedupe/internal/dedupe/normalize"
	"github.com/factengine/claimdedupe/internal/dedupe/store"
)

// pgUniqueViolation is the Postgres SQLSTATE for a unique-constraint conflict.
const pgUniqueViolation = "23505"

// claimClusterMemberClaimIdx is the unique index enforcing "a claim belongs
// to at most one cluster ever" (migrations/00001_claims_schema.sql). It is
// not the ON CONFLICT target of either write below, so a race on it needs
// its own recovery path instead of a silent DO NOTHING.
const claimClusterMemberClaimIdx = "claim_cluster_member_claim_idx"

// contentHash delegates to the normalize package so both backends hash
// text identically to the hash the coordinator reports in its response.
func contentHash(text string) string {
	return normalize.Hash(text)
}

// isConstraintViolation reports whether err is a unique-violation on the
// named Postgres constraint or index.
func isConstraintViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

// validateEmbedding rejects an empty or wrong-dimension vector before it is
// persisted. The embeddings registry already guards against a provider
// returning one, but the store does not trust its caller: an empty or
// mis-dimensioned vector must never be written, per the "no partial
// persistence" rule.
func validateEmbedding(vec []float32, dimensions int) error {
	if len(vec) == 0 {
		return apperr.ErrEmbeddingEmpty
	}

	if dimensions > 0 && len(vec) != dimensions {
		return fmt.Errorf("%w: got %d want %d", apperr.ErrEmbeddingWrongDim, len(vec), dimensions)
	}

	return nil
}

// clusterOf, createCluster and addMember are shared between the vector and
// fallback backends: cluster membership bookkeeping does not depend on how
// embeddings are stored.

func clusterOf(ctx context.Context, pool *pgxpool.Pool, claimID int64) (store.Cluster, bool, error) {
	var c store.Cluster

	err := pool.QueryRow(ctx, `
		SELECT cl.cluster_id, cl.canonical_claim_id, canon.claim_text
		FROM claim_cluster_member m
		JOIN claim_cluster cl ON cl.cluster_id = m.cluster_id
		JOIN claim canon ON canon.claim_id = cl.canonical_claim_id
		WHERE m.claim_id = $1
	`, claimID).Scan(&c.ID, &c.CanonicalClaimID, &c.CanonicalClaimText)

	if errors.Is(err, pgx.ErrNoRows) {
		return store.Cluster{}, false, nil
	}

	if err != nil {
		return store.Cluster{}, false, fmt.Errorf("get cluster of claim: %w", err)
	}

	return c, true, nil
}

func createCluster(ctx context.Context, pool *pgxpool.Pool, canonicalClaimID int64) (store.Cluster, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return store.Cluster{}, fmt.Errorf("begin create-cluster tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var clusterID int64

	err = tx.QueryRow(ctx, `
		INSERT INTO claim_cluster (canonical_claim_id)
		VALUES ($1)
		RETURNING cluster_id
	`, canonicalClaimID).Scan(&clusterID)
	if err != nil {
		return store.Cluster{}, fmt.Errorf("insert cluster: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO claim_cluster_member (cluster_id, claim_id, similarity)
		VALUES ($1, $2, 1.0)
		ON CONFLICT (cluster_id, claim_id) DO NOTHING
	`, clusterID, canonicalClaimID); err != nil {
		if isConstraintViolation(err, claimClusterMemberClaimIdx) {
			// Lost the race: another request already created (or joined
			// canonicalClaimID into) a cluster between our idempotence
			// check and this insert. Re-read rather than error.
			existing, ok, findErr := clusterOf(ctx, pool, canonicalClaimID)
			if findErr != nil {
				return store.Cluster{}, fmt.Errorf("%w: %w", apperr.ErrRaceRetryable, findErr)
			}

			if !ok {
				return store.Cluster{}, fmt.Errorf("%w: claim %d not found after cluster-membership race",
					apperr.ErrRaceRetryable, canonicalClaimID)
			}

			return existing, nil
		}

		return store.Cluster{}, fmt.Errorf("insert canonical membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Cluster{}, fmt.Errorf("commit create-cluster tx: %w", err)
	}

	var text string

	err = pool.QueryRow(ctx, `SELECT claim_text FROM claim WHERE claim_id = $1`, canonicalClaimID).Scan(&text)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return store.Cluster{}, fmt.Errorf("%w: canonical claim %d", apperr.ErrMissingCanonical, canonicalClaimID)
	case err != nil:
		return store.Cluster{}, fmt.Errorf("read canonical claim text: %w", err)
	}

	return store.Cluster{ID: clusterID, CanonicalClaimID: canonicalClaimID, CanonicalClaimText: text}, nil
}

// addMember adds claimID to clusterID. If claimID has already been attached
// to a different cluster by a concurrent request, it returns an error
// wrapping apperr.ErrRaceRetryable so the caller (cluster.Assigner.join)
// can re-read the claim's true cluster instead of trusting this one.
func addMember(ctx context.Context, pool *pgxpool.Pool, clusterID, claimID int64, similarity float64) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO claim_cluster_member (cluster_id, claim_id, similarity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cluster_id, claim_id) DO NOTHING
	`, clusterID, claimID, similarity)
	if err != nil {
		if isConstraintViolation(err, claimClusterMemberClaimIdx) {
			return fmt.Errorf("%w: claim %d already belongs to a different cluster", apperr.ErrRaceRetryable, claimID)
		}

		return fmt.Errorf("add cluster member: %w", err)
	}

	return nil
}
