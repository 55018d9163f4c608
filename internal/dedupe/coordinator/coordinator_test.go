package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factengine/claimdedupe/internal/dedupe/classify"
	"github.com/factengine/claimdedupe/internal/dedupe/embeddings"
	"github.com/factengine/claimdedupe/internal/dedupe/store"
)

type fakeStore struct {
	store.ClaimStore

	claims          map[int64]string
	embeddingModels map[int64]string
	neighbors       []store.Neighbor
	clusters        map[int64]store.Cluster
	members         map[int64]store.Cluster
	nextClaimID     int64
	nextClusterID   int64

	upsertErr error
	topKErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		claims:          make(map[int64]string),
		embeddingModels: make(map[int64]string),
		clusters:        make(map[int64]store.Cluster),
		members:         make(map[int64]store.Cluster),
		nextClaimID:     1,
		nextClusterID:   1,
	}
}

func (f *fakeStore) UpsertClaim(ctx context.Context, text string, embed store.EmbedFunc) (int64, bool, error) {
	if f.upsertErr != nil {
		return 0, false, f.upsertErr
	}

	for id, t := range f.claims {
		if t == text {
			return id, false, nil
		}
	}

	vec, model, err := embed(ctx)
	if err != nil {
		return 0, false, err
	}

	_ = vec

	id := f.nextClaimID
	f.nextClaimID++
	f.claims[id] = text
	f.embeddingModels[id] = model

	return id, true, nil
}

func (f *fakeStore) TopK(_ context.Context, _ int64, k int) ([]store.Neighbor, error) {
	if f.topKErr != nil {
		return nil, f.topKErr
	}

	if k < len(f.neighbors) {
		return f.neighbors[:k], nil
	}

	return f.neighbors, nil
}

func (f *fakeStore) ClaimText(_ context.Context, claimID int64) (string, error) {
	return f.claims[claimID], nil
}

func (f *fakeStore) EmbeddingModel(_ context.Context, claimID int64) (string, error) {
	return f.embeddingModels[claimID], nil
}

func (f *fakeStore) ClusterOf(_ context.Context, claimID int64) (store.Cluster, bool, error) {
	c, ok := f.members[claimID]
	return c, ok, nil
}

func (f *fakeStore) CreateCluster(_ context.Context, canonicalClaimID int64) (store.Cluster, error) {
	c := store.Cluster{
		ID:                 f.nextClusterID,
		CanonicalClaimID:   canonicalClaimID,
		CanonicalClaimText: f.claims[canonicalClaimID],
	}
	f.nextClusterID++
	f.clusters[c.ID] = c
	f.members[canonicalClaimID] = c

	return c, nil
}

func (f *fakeStore) AddMember(_ context.Context, clusterID, claimID int64, _ float64) error {
	f.members[claimID] = f.clusters[clusterID]
	return nil
}

type fakeEmbedder struct {
	result embeddings.EmbeddingResult
	err    error
	models map[embeddings.ProviderName]string
}

func (f *fakeEmbedder) GetEmbeddingWithMetadata(_ context.Context, _ string) (embeddings.EmbeddingResult, error) {
	return f.result, f.err
}

func (f *fakeEmbedder) ModelForProvider(name embeddings.ProviderName) string {
	return f.models[name]
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		result: embeddings.EmbeddingResult{
			Vector:     []float32{1, 0, 0},
			Dimensions: 3,
			Provider:   embeddings.ProviderOpenAI,
		},
		models: map[embeddings.ProviderName]string{
			embeddings.ProviderOpenAI: "text-embedding-3-large",
		},
	}
}

func TestCheckDuplicateNewClaimCreatesCluster(t *testing.T) {
	s := newFakeStore()
	e := newFakeEmbedder()
	c := New(s, e, classify.DefaultThresholds(), classify.DefaultThresholds().NearDuplicate)

	resp, err := c.CheckDuplicate(context.Background(), "the sky is blue", 5)
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, classify.New, resp.Classification)
	assert.Equal(t, "text-embedding-3-large", resp.EmbeddingModel)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, resp.ClaimID, resp.CanonicalClaim.ID)
	assert.Equal(t, "the sky is blue", resp.CanonicalClaim.Text)
}

func TestCheckDuplicateExistingClaimReportsStoredModel(t *testing.T) {
	s := newFakeStore()
	s.claims[1] = "the sky is blue"
	s.embeddingModels[1] = "text-embedding-3-large"
	s.clusters[1] = store.Cluster{ID: 1, CanonicalClaimID: 1, CanonicalClaimText: "the sky is blue"}
	s.members[1] = s.clusters[1]
	s.nextClaimID = 2

	e := newFakeEmbedder()
	c := New(s, e, classify.DefaultThresholds(), classify.DefaultThresholds().NearDuplicate)

	resp, err := c.CheckDuplicate(context.Background(), "the sky is blue", 5)
	require.NoError(t, err)
	assert.False(t, resp.Created)
	assert.Equal(t, "text-embedding-3-large", resp.EmbeddingModel)
	assert.Empty(t, resp.Provider)
	assert.Equal(t, int64(1), resp.ClusterID)
}

func TestCheckDuplicateClassifiesByNeighborSimilarity(t *testing.T) {
	s := newFakeStore()
	s.claims[1] = "existing claim"
	s.clusters[1] = store.Cluster{ID: 1, CanonicalClaimID: 1, CanonicalClaimText: "existing claim"}
	s.members[1] = s.clusters[1]
	s.nextClaimID = 2
	s.neighbors = []store.Neighbor{{ClaimID: 1, Text: "existing claim", Similarity: 0.97}}

	e := newFakeEmbedder()
	c := New(s, e, classify.DefaultThresholds(), classify.DefaultThresholds().NearDuplicate)

	resp, err := c.CheckDuplicate(context.Background(), "a brand new claim", 5)
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, classify.Duplicate, resp.Classification)
	assert.Equal(t, 0.97, resp.MaxSimilarity)
	assert.Equal(t, int64(1), resp.ClusterID)
	assert.Equal(t, int64(1), resp.CanonicalClaim.ID)
}

func TestCheckDuplicatePropagatesUpsertError(t *testing.T) {
	s := newFakeStore()
	s.upsertErr = errors.New("boom")
	e := newFakeEmbedder()
	c := New(s, e, classify.DefaultThresholds(), classify.DefaultThresholds().NearDuplicate)

	_, err := c.CheckDuplicate(context.Background(), "x", 5)
	require.Error(t, err)
}

func TestCheckDuplicateBatchStopsOnFirstError(t *testing.T) {
	s := newFakeStore()
	e := newFakeEmbedder()
	c := New(s, e, classify.DefaultThresholds(), classify.DefaultThresholds().NearDuplicate)

	results, err := c.CheckDuplicateBatch(context.Background(), []string{"one", "two"}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	s.topKErr = errors.New("boom")

	_, err = c.CheckDuplicateBatch(context.Background(), []string{"three", "four"}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch item 0")
}
