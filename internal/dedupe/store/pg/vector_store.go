package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/factengine/claimdedupe/internal/dedupe/apperr"
	"github.com/factengine/claimdedupe/internal/dedupe/store"
)

// vectorStore implements store.ClaimStore on top of a native pgvector
// column, pushing ordering and the top-k limit to the engine via the
// cosine distance operator (<=>).
type vectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

func newVectorStore(pool *pgxpool.Pool, dimensions int) *vectorStore {
	return &vectorStore{pool: pool, dimensions: dimensions}
}

func (s *vectorStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *vectorStore) UpsertClaim(ctx context.Context, text string, embed store.EmbedFunc) (int64, bool, error) {
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
		// Lost the race: another request inserted this hash first.
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

	if _, err := tx.Exec(ctx, `
		INSERT INTO claim_embedding (claim_id, embedding_model, embedding)
		VALUES ($1, $2, $3)
	`, claimID, model, pgvector.NewVector(vec)); err != nil {
		return 0, false, fmt.Errorf("insert claim embedding: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit upsert tx: %w", err)
	}

	return claimID, true, nil
}

func (s *vectorStore) findByHash(ctx context.Context, hash string) (int64, bool, error) {
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

func (s *vectorStore) TopK(ctx context.Context, queryClaimID int64, k int) ([]store.Neighbor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.claim_id, c.claim_text, 1 - (e.embedding <=> q.embedding) AS similarity
		FROM claim_embedding q
		JOIN claim_embedding e ON e.claim_id != q.claim_id
		JOIN claim c ON c.claim_id = e.claim_id
		WHERE q.claim_id = $1
		ORDER BY (e.embedding <=> q.embedding) ASC, c.claim_id ASC
		LIMIT $2
	`, queryClaimID, k)
	if err != nil {
		return nil, fmt.Errorf("top-k query: %w", err)
	}
	defer rows.Close()

	var out []store.Neighbor

	for rows.Next() {
		var n store.Neighbor
		if err := rows.Scan(&n.ClaimID, &n.Text, &n.Similarity); err != nil {
			return nil, fmt.Errorf("scan top-k row: %w", err)
		}

		out = append(out, n)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate top-k rows: %w", rows.Err())
	}

	return out, nil
}

func (s *vectorStore) ClaimText(ctx context.Context, claimID int64) (string, error) {
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

func (s *vectorStore) EmbeddingModel(ctx context.Context, claimID int64) (string, error) {
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

func (s *vectorStore) ClusterOf(ctx context.Context, claimID int64) (store.Cluster, bool, error) {
	return clusterOf(ctx, s.pool, claimID)
}

func (s *vectorStore) CreateCluster(ctx context.Context, canonicalClaimID int64) (store.Cluster, error) {
	return createCluster(ctx, s.pool, canonicalClaimID)
}

func (s *vectorStore) AddMember(ctx context.Context, clusterID, claimID int64, similarity float64) error {
	return addMember(ctx, s.pool, clusterID, claimID, similarity)
}
