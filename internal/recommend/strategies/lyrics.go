// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import (
	"github.com/sonora-audio/sonora/internal/recommend/lyricsindex"
	"github.com/sonora-audio/sonora/internal/recommend/normalize"
	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
)

// RunLyrics implements the lyrics strategy (spec §4.7.3): for each seed,
// knn_by_track; pool and de-duplicate by max score. Seeds lacking lyrics
// are skipped, not failed, unless every seed lacks lyrics, in which case
// the caller is told to fall back to the cluster strategy. methodOverride
// behaves as in RunAudio.
func RunLyrics(handle *lyricsindex.Handle, lookup lyricsindex.LyricsLookup, seeds []rectypes.TrackRef, k int, methodOverride normalize.Method) (candidates []rectypes.Recommendation, allSeedsLackLyrics bool, err error) {
	pool := newCandidatePool(seeds)
	method := lyricsNormalizeMethod(handle.Descriptor(), methodOverride)

	anySeedHadLyrics := false
	for _, seed := range seeds {
		neighbors, nErr := handle.KNNByTrack(seed, k*2, lookup)
		if nErr != nil {
			// NoLyricsError: this seed is skipped, not fatal (spec §4.7.3).
			continue
		}
		anySeedHadLyrics = true

		distances := make([]float64, len(neighbors))
		for i, n := range neighbors {
			distances[i] = n.Distance
		}
		scores := scoresFromDistances(distances, method)

		seed := seed
		for i, n := range neighbors {
			pool.add(rectypes.Recommendation{
				TrackID:         n.TrackID,
				SimilarityScore: scores[i],
				RawDistance:     floatPtr(n.Distance),
				SourceSeed:      &seed,
			})
		}
	}

	if !anySeedHadLyrics {
		return nil, true, nil
	}
	return pool.all(), false, nil
}

