// Package cluster implements SC/CCS — Semantic Clustering and Canonical
// Claim Selection: the rule that attaches a claim to an existing cluster or
// starts a new one, and never re-elects or merges clusters once created.
package cluster

import (
	"context"
	"fmt"

	"github.com/factengine/claimdedupe/internal/dedupe/apperr"
	"github.com/factengine/claimdedupe/internal/dedupe/store"
)

// Assigner assigns claims to clusters against a store.ClaimStore.
type Assigner struct {
	store store.ClaimStore
}

// New builds an Assigner over the given store.
func New(s store.ClaimStore) *Assigner {
	return &Assigner{store: s}
}

// Assign attaches claimID to a cluster, in order:
//
//  1. Idempotence: if claimID is already a member, return its cluster unchanged.
//  2. Join: if bestMatchID is set and bestMatchSimilarity >= joinThreshold, join
//     the best match's cluster (creating one for it first if it has none).
//  3. Create: otherwise start a new cluster with claimID as canonical.
//
// assigned reports whether this call wrote new membership (false for the
// idempotent case, so callers can distinguish a retry from a fresh join).
func (a *Assigner) Assign(
	ctx context.Context,
	claimID int64,
	bestMatchID *int64,
	bestMatchSimilarity float64,
	joinThreshold float64,
) (store.Cluster, bool, error) {
	if existing, ok, err := a.store.ClusterOf(ctx, claimID); err != nil {
		return store.Cluster{}, false, fmt.Errorf("check existing membership: %w", err)
	} else if ok {
		return existing, false, nil
	}

	if bestMatchID != nil && bestMatchSimilarity >= joinThreshold {
		return a.join(ctx, *bestMatchID, claimID, bestMatchSimilarity)
	}

	c, err := a.store.CreateCluster(ctx, claimID)
	if err != nil {
		return store.Cluster{}, false, fmt.Errorf("create cluster for %d: %w", claimID, err)
	}

	return c, true, nil
}

// join reports assigned=false when a concurrent request attached claimID
// first, since this call then wrote no membership of its own.
func (a *Assigner) join(ctx context.Context, bestMatchID, claimID int64, similarity float64) (store.Cluster, bool, error) {
	c, ok, err := a.store.ClusterOf(ctx, bestMatchID)
	if err != nil {
		return store.Cluster{}, false, fmt.Errorf("check best match membership: %w", err)
	}

	if !ok {
		// Edge case: a stored claim without membership. It becomes canonical
		// of a fresh cluster, admitted at similarity 1.0.
		c, err = a.store.CreateCluster(ctx, bestMatchID)
		if err != nil {
			return store.Cluster{}, false, fmt.Errorf("create cluster for best match %d: %w", bestMatchID, err)
		}
	}

	if err := a.store.AddMember(ctx, c.ID, claimID, similarity); err != nil {
		if apperr.Is(err, apperr.ErrRaceRetryable) {
			// claimID was attached to a different cluster by a concurrent
			// request between our idempotence check and this add; report
			// the truth instead of the cluster we tried to join it to.
			current, ok, findErr := a.store.ClusterOf(ctx, claimID)
			if findErr != nil {
				return store.Cluster{}, false, fmt.Errorf("re-read cluster after race: %w", findErr)
			}

			if !ok {
				return store.Cluster{}, false, fmt.Errorf("claim %d missing cluster membership after race: %w", claimID, err)
			}

			return current, false, nil
		}

		return store.Cluster{}, false, fmt.Errorf("add claim %d to cluster %d: %w", claimID, c.ID, err)
	}

	return c, true, nil
}
