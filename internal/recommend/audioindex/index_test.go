// SPDX-License-Identifier: AGPL-3.0-or-later

package audioindex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
)

func fixtureVariant() *artifacts.AudioVariant {
	// 6 tracks in 2D space, two well-separated clusters plus one noise point.
	data := []float64{
		0, 0, // a: cluster 0
		0, 1, // b: cluster 0
		1, 0, // c: cluster 0
		10, 10, // d: cluster 1
		10, 11, // e: cluster 1
		50, 50, // f: noise
	}
	return &artifacts.AudioVariant{
		Descriptor: artifacts.VariantDescriptor{Family: artifacts.FamilyAudio, Name: "v1", Metric: artifacts.MetricEuclidean},
		Embeddings: artifacts.Matrix{Rows: 6, Cols: 2, Data: data},
		ClusterLabels: []int{0, 0, 0, 1, 1, -1},
		TrackIDs:      []artifacts.TrackRef{"a", "b", "c", "d", "e", "f"},
	}
}

func TestKNNByTrackExcludesSelfAndOrdersByDistance(t *testing.T) {
	h := NewHandle(fixtureVariant(), 8)
	neighbors, err := h.KNNByTrack("a", 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	for _, n := range neighbors {
		require.NotEqual(t, artifacts.TrackRef("a"), n.TrackID)
	}
	require.True(t, neighbors[0].Distance <= neighbors[1].Distance)
}

func TestKNNByTrackUnknownTrackIsNotFound(t *testing.T) {
	h := NewHandle(fixtureVariant(), 8)
	_, err := h.KNNByTrack("nope", 2)
	require.Error(t, err)
	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
}

func TestKNNClusterScopedRestrictsToSameCluster(t *testing.T) {
	h := NewHandle(fixtureVariant(), 8)
	neighbors, err := h.KNNClusterScoped("a", 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	for _, n := range neighbors {
		require.Contains(t, []artifacts.TrackRef{"b", "c"}, n.TrackID)
	}
}

func TestKNNClusterScopedFallsBackWhenClusterTooSmall(t *testing.T) {
	h := NewHandle(fixtureVariant(), 8)
	// cluster 1 has only 2 members (d, e); asking for k=3 cannot be satisfied
	// within the cluster, so the global index is used instead.
	neighbors, err := h.KNNClusterScoped("d", 3)
	require.NoError(t, err)
	require.Len(t, neighbors, 3)
}

func TestKNNClusterScopedFallsBackForNoiseCluster(t *testing.T) {
	h := NewHandle(fixtureVariant(), 8)
	neighbors, err := h.KNNClusterScoped("f", 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
}

func TestClusterOf(t *testing.T) {
	h := NewHandle(fixtureVariant(), 8)
	label, ok := h.ClusterOf("a")
	require.True(t, ok)
	require.Equal(t, 0, label)

	_, ok = h.ClusterOf("missing")
	require.False(t, ok)
}

func TestClusterSubIndexCoalescesConcurrentBuilds(t *testing.T) {
	h := NewHandle(fixtureVariant(), 8)
	var wg sync.WaitGroup
	results := make([]*clusterSubIndex, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := h.clusterSubIndex(0)
			require.NoError(t, err)
			results[i] = sub
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		require.Same(t, results[0], results[i])
	}
}

func TestClusterLRUEvictsLeastRecentlyUsed(t *testing.T) {
	lru := newClusterLRU(2)
	lru.put(0, &clusterSubIndex{rows: []int{0}})
	lru.put(1, &clusterSubIndex{rows: []int{1}})
	// touch 0 so 1 becomes the least recently used
	_, _ = lru.get(0)
	lru.put(2, &clusterSubIndex{rows: []int{2}})

	_, ok := lru.get(1)
	require.False(t, ok, "label 1 should have been evicted")
	_, ok = lru.get(0)
	require.True(t, ok)
	_, ok = lru.get(2)
	require.True(t, ok)
}
