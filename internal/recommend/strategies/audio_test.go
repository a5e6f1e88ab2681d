// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
	"github.com/sonora-audio/sonora/internal/recommend/audioindex"
	"github.com/sonora-audio/sonora/internal/recommend/normalize"
	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
)

func fixtureAudioHandle() *audioindex.Handle {
	data := []float64{
		0, 0,
		0, 1,
		1, 0,
		10, 10,
		10, 11,
	}
	variant := &artifacts.AudioVariant{
		Descriptor:    artifacts.VariantDescriptor{Family: artifacts.FamilyAudio, Name: "v1", Metric: artifacts.MetricEuclidean},
		Embeddings:    artifacts.Matrix{Rows: 5, Cols: 2, Data: data},
		ClusterLabels: []int{0, 0, 0, 1, 1},
		TrackIDs:      []artifacts.TrackRef{"a", "b", "c", "d", "e"},
	}
	return audioindex.NewHandle(variant, 8)
}

func TestRunAudioNeverReturnsSeed(t *testing.T) {
	handle := fixtureAudioHandle()
	out, err := RunAudio(handle, []rectypes.TrackRef{"a"}, 4, ByTrack, "")
	require.NoError(t, err)
	for _, r := range out {
		require.NotEqual(t, rectypes.TrackRef("a"), r.TrackID)
	}
}

func TestRunAudioClusterScopedRestrictsCandidates(t *testing.T) {
	handle := fixtureAudioHandle()
	// k=1 asks for 2 neighbors; cluster 0 has 3 members (>= k*2+1), so the
	// search stays inside the cluster instead of falling back to global.
	out, err := RunAudio(handle, []rectypes.TrackRef{"a"}, 1, ClusterScoped, "")
	require.NoError(t, err)
	for _, r := range out {
		require.Contains(t, []rectypes.TrackRef{"b", "c"}, r.TrackID)
	}
}

func TestRunAudioSkipsUnresolvedSeeds(t *testing.T) {
	handle := fixtureAudioHandle()
	out, err := RunAudio(handle, []rectypes.TrackRef{"ghost"}, 2, ByTrack, "")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestRunAudioScoresInUnitRange(t *testing.T) {
	handle := fixtureAudioHandle()
	out, err := RunAudio(handle, []rectypes.TrackRef{"a"}, 4, ByTrack, "")
	require.NoError(t, err)
	for _, r := range out {
		require.GreaterOrEqual(t, r.SimilarityScore, 0.0)
		require.LessOrEqual(t, r.SimilarityScore, 100.0)
	}
}

func TestRunAudioMethodOverrideChangesScores(t *testing.T) {
	handle := fixtureAudioHandle()
	table, err := RunAudio(handle, []rectypes.TrackRef{"a"}, 4, ByTrack, "")
	require.NoError(t, err)
	linear, err := RunAudio(handle, []rectypes.TrackRef{"a"}, 4, ByTrack, normalize.Linear)
	require.NoError(t, err)
	require.Len(t, linear, len(table))

	scoreOf := func(recs []rectypes.Recommendation, id rectypes.TrackRef) float64 {
		for _, r := range recs {
			if r.TrackID == id {
				return r.SimilarityScore
			}
		}
		return -1
	}
	require.NotEqual(t, scoreOf(table, "d"), scoreOf(linear, "d"))
}
