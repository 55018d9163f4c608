package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/factengine/claimdedupe/internal/dedupe/apperr"
	"github.com/factengine/claimdedupe/internal/dedupe/similarity"
	"github.com/factengine/claimdedupe/internal/dedupe/store"
)

// fallbackStore implements store.ClaimStore on a plain Postgres install
// without the pgvector extension: embeddings are serialized as JSON arrays
// into a text column, and nearest-neighbor search is done in process by
// pulling every other embedding and ranking by similarity.Cosine. It trades
// query-time cost for zero extension dependency, matching the dialect the
// vector store would otherwise require.
type fallbackStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

func newFallbackStore(pool *pgxpool.Pool, dimensions int) *fallbackStore {
	return &fallbackStore{pool: pool, dimensions: dimensions}
}

func (s *fallbackStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *fallbackStore) UpsertClaim(ctx context.Context, text string, embed store.EmbedFunc) (int64, bool, error) {
	hash := contentHash(text)

	if id, ok, err := s.findByHash(ctx, hash); err != nil {
		return 0, false, err
	} else if ok {
		return id, false, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var claimID int64

	err = tx.QueryRow(ctx, `
		INSERT INTO claim (claim_text, content_hash)
		VALUES ($1, $2)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING claim_id
	`, text, hash).Scan(&claimID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		id, ok, findErr := s.findByHash(ctx, hash)
		if findErr != nil {
			return 0, false, fmt.Errorf("%w: %w", apperr.ErrRaceRetryable, findErr)
		}

		if !ok {
			return 0, false, fmt.Errorf("%w: content_hash %q not found after conflict", apperr.ErrRaceRetryable, hash)
		}

		return id, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("insert claim: %w", err)
	}

	vec, model, err := embed(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("embed claim: %w", err)
	}

	if err := validateEmbedding(vec, s.dimensions); err != nil {
		return 0, false, err
	}

	encoded, err := json.Marshal(vec)
	if err != nil {
		return 0, false, fmt.Errorf("encode embedding: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO claim_embedding (claim_id, embedding_model, embedding_json)
		VALUES ($1, $2, $3)
	`, claimID, model, string(encoded)); err != nil {
		return 0, false, fmt.Errorf("insert claim embedding: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit upsert tx: %w", err)
	}

	return claimID, true, nil
}

func (s *fallbackStore) findByHash(ctx context.Context, hash string) (int64, bool, error) {
	var id int64

	err := s.pool.QueryRow(ctx, `SELECT claim_id FROM claim WHERE content_hash = $1`, hash).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("find claim by hash: %w", err)
	}

	return id, true, nil
}

func (s *fallbackStore) TopK(ctx context.Context, queryClaimID int64, k int) ([]store.Neighbor, error) {
	var queryJSON string

	err := s.pool.QueryRow(ctx, `SELECT embedding_json FROM claim_embedding WHERE claim_id = $1`, queryClaimID).
		Scan(&queryJSON)
	if err != nil {
		return nil, fmt.Errorf("read query embedding: %w", err)
	}

	var query []float32
	if err := json.Unmarshal([]byte(queryJSON), &query); err != nil {
		return nil, fmt.Errorf("decode query embedding: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.claim_id, c.claim_text, e.embedding_json
		FROM claim_embedding e
		JOIN claim c ON c.claim_id = e.claim_id
		WHERE e.claim_id != $1
	`, queryClaimID)
	if err != nil {
		return nil, fmt.Errorf("fetch candidate embeddings: %w", err)
	}
	defer rows.Close()

	queryF64 := similarity.Float32To64(query)

	var candidates []store.Neighbor

	for rows.Next() {
		var (
			claimID    int64
			text       string
			candidJSON string
		)

		if err := rows.Scan(&claimID, &text, &candidJSON); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}

		var candid []float32
		if err := json.Unmarshal([]byte(candidJSON), &candid); err != nil {
			return nil, fmt.Errorf("decode candidate embedding: %w", err)
		}

		if len(candid) != len(query) {
			return nil, fmt.Errorf("%w: claim %d has %d dimensions, query has %d",
				apperr.ErrVectorDimMismatch, claimID, len(candid), len(query))
		}

		sim, err := similarity.Cosine(queryF64, similarity.Float32To64(candid))
		if err != nil {
			return nil, fmt.Errorf("cosine similarity: %w", err)
		}

		candidates = append(candidates, store.Neighbor{ClaimID: claimID, Text: text, Similarity: sim})
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", rows.Err())
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}

		return candidates[i].ClaimID < candidates[j].ClaimID
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return candidates, nil
}

func (s *fallbackStore) ClaimText(ctx context.Context, claimID int64) (string, error) {
	var text string

	err := s.pool.QueryRow(ctx, `SELECT claim_text FROM claim WHERE claim_id = $1`, claimID).Scan(&text)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", fmt.Errorf("%w: claim %d", apperr.ErrClaimNotFound, claimID)
	case err != nil:
		return "", fmt.Errorf("get claim text: %w", err)
	}

	return text, nil
}

func (s *fallbackStore) EmbeddingModel(ctx context.Context, claimID int64) (string, error) {
	var model string

	err := s.pool.QueryRow(ctx, `SELECT embedding_model FROM claim_embedding WHERE claim_id = $1`, claimID).Scan(&model)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", fmt.Errorf("%w: claim %d", apperr.ErrMissingEmbedding, claimID)
	case err != nil:
		return "", fmt.Errorf("get embedding model: %w", err)
	}

	return model, nil
}

func (s *fallbackStore) ClusterOf(ctx context.Context, claimID int64) (store.Cluster, bool, error) {
	return clusterOf(ctx, s.pool, claimID)
}

func (s *fallbackStore) CreateCluster(ctx context.Context, canonicalClaimID int64) (store.Cluster, error) {
	return createCluster(ctx, s.pool, canonicalClaimID)
}

func (s *fallbackStore) AddMember(ctx context.Context, clusterID, claimID int64, similarity float64) error {
	return addMember(ctx, s.pool, clusterID, claimID, similarity)
}
