// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
	"github.com/sonora-audio/sonora/internal/tracklookup"
)

func TestCandidatePoolNeverKeepsSeeds(t *testing.T) {
	pool := newCandidatePool([]rectypes.TrackRef{"seed"})
	pool.add(rectypes.Recommendation{TrackID: "seed", SimilarityScore: 99})
	pool.add(rectypes.Recommendation{TrackID: "other", SimilarityScore: 10})

	all := pool.all()
	require.Len(t, all, 1)
	require.Equal(t, rectypes.TrackRef("other"), all[0].TrackID)
}

func TestCandidatePoolKeepsMaxScore(t *testing.T) {
	pool := newCandidatePool(nil)
	pool.add(rectypes.Recommendation{TrackID: "a", SimilarityScore: 10})
	pool.add(rectypes.Recommendation{TrackID: "a", SimilarityScore: 80})
	pool.add(rectypes.Recommendation{TrackID: "a", SimilarityScore: 40})

	all := pool.all()
	require.Len(t, all, 1)
	require.Equal(t, 80.0, all[0].SimilarityScore)
}

func TestRankAndTruncateTieBreakOrder(t *testing.T) {
	candidates := []rectypes.Recommendation{
		{TrackID: "z", SimilarityScore: 50},
		{TrackID: "a", SimilarityScore: 50},
		{TrackID: "b", SimilarityScore: 90},
	}
	popularity := map[rectypes.TrackRef]int{"z": 10, "a": 10}

	ranked := RankAndTruncate(candidates, popularity, 10)
	require.Equal(t, []rectypes.TrackRef{"b", "a", "z"}, []rectypes.TrackRef{ranked[0].TrackID, ranked[1].TrackID, ranked[2].TrackID})
}

func TestRankAndTruncateCapsAtK(t *testing.T) {
	candidates := []rectypes.Recommendation{
		{TrackID: "a", SimilarityScore: 90},
		{TrackID: "b", SimilarityScore: 80},
		{TrackID: "c", SimilarityScore: 70},
	}
	ranked := RankAndTruncate(candidates, nil, 2)
	require.Len(t, ranked, 2)
}

func TestApplyFiltersMinPopularityAndYearRange(t *testing.T) {
	year2020 := 2020
	records := map[rectypes.TrackRef]tracklookup.TrackRecord{
		"a": {ID: "a", Popularity: 80, Year: &year2020},
		"b": {ID: "b", Popularity: 10, Year: &year2020},
	}
	filters := &rectypes.FilterSpec{
		MinPopularity: intPtr(50),
		YearRange:     &rectypes.YearRange{Min: 2019, Max: 2021},
	}
	candidates := []rectypes.Recommendation{{TrackID: "a"}, {TrackID: "b"}}

	out := ApplyFilters(candidates, records, filters, nil)
	require.Len(t, out, 1)
	require.Equal(t, rectypes.TrackRef("a"), out[0].TrackID)
}

func TestApplyFiltersMaxPerArtist(t *testing.T) {
	records := map[rectypes.TrackRef]tracklookup.TrackRecord{
		"a": {ID: "a", ArtistID: "art1"},
		"b": {ID: "b", ArtistID: "art1"},
		"c": {ID: "c", ArtistID: "art2"},
	}
	filters := &rectypes.FilterSpec{MaxPerArtist: intPtr(1)}
	candidates := []rectypes.Recommendation{{TrackID: "a"}, {TrackID: "b"}, {TrackID: "c"}}

	out := ApplyFilters(candidates, records, filters, nil)
	require.Len(t, out, 2)
}

func TestApplyFiltersNilPassesThrough(t *testing.T) {
	candidates := []rectypes.Recommendation{{TrackID: "a"}}
	out := ApplyFilters(candidates, nil, nil, nil)
	require.Equal(t, candidates, out)
}
