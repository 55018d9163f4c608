package cluster

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factengine/claimdedupe/internal/dedupe/apperr"
	"github.com/factengine/claimdedupe/internal/dedupe/store"
)

type fakeStore struct {
	store.ClaimStore

	members        map[int64]store.Cluster
	clusters       map[int64]store.Cluster
	nextID         int64
	addCalls       []addCall
	createErr      error
	addRaceFor     int64         // claimID that loses the unique-index race on its next AddMember call
	raceWinnerRead store.Cluster // cluster a concurrent request committed claimID into, visible only after the race fires
}

type addCall struct {
	clusterID, claimID int64
	similarity         float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members:  make(map[int64]store.Cluster),
		clusters: make(map[int64]store.Cluster),
		nextID:   1,
	}
}

func (f *fakeStore) ClusterOf(_ context.Context, claimID int64) (store.Cluster, bool, error) {
	c, ok := f.members[claimID]
	return c, ok, nil
}

func (f *fakeStore) CreateCluster(_ context.Context, canonicalClaimID int64) (store.Cluster, error) {
	if f.createErr != nil {
		return store.Cluster{}, f.createErr
	}

	c := store.Cluster{ID: f.nextID, CanonicalClaimID: canonicalClaimID, CanonicalClaimText: "canon"}
	f.nextID++
	f.clusters[c.ID] = c
	f.members[canonicalClaimID] = c

	return c, nil
}

func (f *fakeStore) AddMember(_ context.Context, clusterID, claimID int64, similarity float64) error {
	f.addCalls = append(f.addCalls, addCall{clusterID, claimID, similarity})

	if f.addRaceFor == claimID {
		f.addRaceFor = 0
		// The concurrent request's own AddMember committed first; our
		// ClusterOf re-read must see its result.
		f.members[claimID] = f.raceWinnerRead

		return fmt.Errorf("%w: claim %d already belongs to a different cluster", apperr.ErrRaceRetryable, claimID)
	}

	f.members[claimID] = f.clusters[clusterID]

	return nil
}

func TestAssignIdempotent(t *testing.T) {
	fs := newFakeStore()
	fs.members[7] = store.Cluster{ID: 1, CanonicalClaimID: 7}

	a := New(fs)

	c, assigned, err := a.Assign(context.Background(), 7, nil, 0, 0.85)
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.Equal(t, int64(1), c.ID)
	assert.Empty(t, fs.addCalls)
}

func TestAssignCreatesWhenNoMatch(t *testing.T) {
	fs := newFakeStore()
	a := New(fs)

	c, assigned, err := a.Assign(context.Background(), 5, nil, 0, 0.85)
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.Equal(t, int64(5), c.CanonicalClaimID)
}

func TestAssignCreatesWhenBelowThreshold(t *testing.T) {
	fs := newFakeStore()
	a := New(fs)

	best := int64(9)

	c, assigned, err := a.Assign(context.Background(), 5, &best, 0.5, 0.85)
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.Equal(t, int64(5), c.CanonicalClaimID)
}

func TestAssignJoinsExistingClusterOfBestMatch(t *testing.T) {
	fs := newFakeStore()
	fs.members[9] = store.Cluster{ID: 3, CanonicalClaimID: 9, CanonicalClaimText: "canon"}
	fs.clusters[3] = fs.members[9]

	a := New(fs)
	best := int64(9)

	c, assigned, err := a.Assign(context.Background(), 5, &best, 0.9, 0.85)
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.Equal(t, int64(3), c.ID)
	require.Len(t, fs.addCalls, 1)
	assert.Equal(t, addCall{clusterID: 3, claimID: 5, similarity: 0.9}, fs.addCalls[0])
}

func TestAssignCreatesClusterForUnclusteredBestMatch(t *testing.T) {
	fs := newFakeStore()
	a := New(fs)
	best := int64(9)

	c, assigned, err := a.Assign(context.Background(), 5, &best, 0.9, 0.85)
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.Equal(t, int64(9), c.CanonicalClaimID)
	require.Len(t, fs.addCalls, 1)
	assert.Equal(t, int64(5), fs.addCalls[0].claimID)
}

func TestAssignThresholdIsInclusive(t *testing.T) {
	fs := newFakeStore()
	a := New(fs)
	best := int64(9)

	_, assigned, err := a.Assign(context.Background(), 5, &best, 0.85, 0.85)
	require.NoError(t, err)
	assert.True(t, assigned)
	require.Len(t, fs.addCalls, 1)
}

// TestAssignJoinRaceRereadsTrueCluster exercises join's recovery path end to
// end: AddMember fails with ErrRaceRetryable, and join must return the
// cluster ClusterOf reports for claimID at that moment, not the one it
// attempted to join.
func TestAssignJoinRaceRereadsTrueCluster(t *testing.T) {
	fs := newFakeStore()
	fs.clusters[1] = store.Cluster{ID: 1, CanonicalClaimID: 9, CanonicalClaimText: "canon"}
	fs.members[9] = fs.clusters[1]

	// Claim 5 has no membership at idempotence-check time, but a concurrent
	// request commits it into cluster 2 before our AddMember lands.
	fs.clusters[2] = store.Cluster{ID: 2, CanonicalClaimID: 5, CanonicalClaimText: "other canon"}
	fs.addRaceFor = 5
	fs.raceWinnerRead = fs.clusters[2]

	a := New(fs)
	best := int64(9)

	c, assigned, err := a.Assign(context.Background(), 5, &best, 0.9, 0.85)
	require.NoError(t, err)
	assert.False(t, assigned, "the race loser wrote no membership of its own")
	assert.Equal(t, int64(2), c.ID, "join must report the race winner's cluster, not cluster 1")
}
