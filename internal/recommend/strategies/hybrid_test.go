// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
)

func TestRunHybridMatchesWorkedExample(t *testing.T) {
	cluster := []rectypes.Recommendation{{TrackID: "x", SimilarityScore: 60}}
	artistBased := []rectypes.Recommendation{{TrackID: "x", SimilarityScore: 50}}
	var global []rectypes.Recommendation

	out := RunHybrid(cluster, global, artistBased, nil)
	require.Len(t, out, 1)
	require.InDelta(t, 49.0, out[0].SimilarityScore, 1e-9)
}

func TestRunHybridClampsAt100(t *testing.T) {
	cluster := []rectypes.Recommendation{{TrackID: "x", SimilarityScore: 100}}
	global := []rectypes.Recommendation{{TrackID: "x", SimilarityScore: 100}}
	artistBased := []rectypes.Recommendation{{TrackID: "x", SimilarityScore: 100}}

	out := RunHybrid(cluster, global, artistBased, nil)
	require.Len(t, out, 1)
	require.Equal(t, 100.0, out[0].SimilarityScore)
}

func TestRunHybridSingleMethodCandidate(t *testing.T) {
	cluster := []rectypes.Recommendation{{TrackID: "y", SimilarityScore: 40}}
	out := RunHybrid(cluster, nil, nil, nil)
	require.Len(t, out, 1)
	require.InDelta(t, 0.4*40+5, out[0].SimilarityScore, 1e-9)
}

func TestRunHybridConfiguredWeightsAreNormalizedAndApplied(t *testing.T) {
	cluster := []rectypes.Recommendation{{TrackID: "z", SimilarityScore: 100}}
	weights := map[rectypes.Strategy]float64{
		rectypes.StrategyCluster:     1,
		rectypes.StrategyGlobal:      1,
		rectypes.StrategyArtistBased: 2,
	}
	out := RunHybrid(cluster, nil, nil, weights)
	require.Len(t, out, 1)
	// cluster's normalized weight is 1/4; 0.25*100 + 5 diversity bonus.
	require.InDelta(t, 0.25*100+5, out[0].SimilarityScore, 1e-9)
}
