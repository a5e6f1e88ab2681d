// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sonora-audio/sonora/internal/tracklookup"
)

func TestRunArtistBasedScoresSameArtistTrackAt85PlusPopularity(t *testing.T) {
	lookup := tracklookup.NewMemoryLookuper()
	lookup.Add(tracklookup.TrackRecord{ID: "seed", ArtistID: "art1", Popularity: 50})
	lookup.Add(tracklookup.TrackRecord{ID: "same-artist", ArtistID: "art1", Popularity: 50})
	lookup.Add(tracklookup.TrackRecord{ID: "other-artist", ArtistID: "art2", Popularity: 50})

	seeds := []tracklookup.TrackRecord{{ID: "seed", ArtistID: "art1"}}
	// other-artist is in the catalog under art2, so TracksByArtist("art1")
	// never returns it and same-artist is the only candidate.
	out, err := RunArtistBased(lookup, seeds)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 85.0+5.0, out[0].SimilarityScore)
}

func TestRunGenreBasedScoresCloserFeaturesHigher(t *testing.T) {
	lookup := tracklookup.NewMemoryLookuper()
	closeFeatures := tracklookup.AudioFeatureSummary{Danceability: 0.5, Energy: 0.5, Valence: 0.5, Acousticness: 0.5}
	farFeatures := tracklookup.AudioFeatureSummary{Danceability: 0.0, Energy: 0.0, Valence: 0.0, Acousticness: 0.0}
	lookup.Add(tracklookup.TrackRecord{ID: "close", AudioFeatures: closeFeatures, Popularity: 10})
	lookup.Add(tracklookup.TrackRecord{ID: "far", AudioFeatures: farFeatures, Popularity: 10})

	seeds := []tracklookup.TrackRecord{{ID: "seed", AudioFeatures: closeFeatures}}
	out, err := RunGenreBased(lookup, seeds, 10)
	require.NoError(t, err)

	scores := map[string]float64{}
	for _, r := range out {
		scores[string(r.TrackID)] = r.SimilarityScore
	}
	require.Greater(t, scores["close"], scores["far"])
}

func TestRunGlobalExcludesSeedsAndStaysInRange(t *testing.T) {
	lookup := tracklookup.NewMemoryLookuper()
	lookup.Add(tracklookup.TrackRecord{ID: "seed", Popularity: 99})
	lookup.Add(tracklookup.TrackRecord{ID: "other", Popularity: 80})

	seed := int64(42)
	out, err := RunGlobal(lookup, []tracklookup.TrackRef{"seed"}, 10, &seed)
	require.NoError(t, err)
	for _, r := range out {
		require.NotEqual(t, tracklookup.TrackRef("seed"), r.TrackID)
		require.GreaterOrEqual(t, r.SimilarityScore, 0.0)
		require.LessOrEqual(t, r.SimilarityScore, 100.0)
	}
}

func TestRunGlobalDeterministicWithSameSeed(t *testing.T) {
	lookup := tracklookup.NewMemoryLookuper()
	lookup.Add(tracklookup.TrackRecord{ID: "a", Popularity: 50})
	lookup.Add(tracklookup.TrackRecord{ID: "b", Popularity: 40})

	seed := int64(7)
	out1, err := RunGlobal(lookup, nil, 10, &seed)
	require.NoError(t, err)
	out2, err := RunGlobal(lookup, nil, 10, &seed)
	require.NoError(t, err)
	require.Equal(t, out1, out2)
}
