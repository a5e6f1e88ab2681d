// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import (
	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
	"github.com/sonora-audio/sonora/internal/tracklookup"
)

const jitterRange = 10.0

// RunGlobal implements the popularity strategy (spec §4.7.6): the
// highest-popularity tracks excluding seeds, with small random jitter for
// diversity.
func RunGlobal(lookup tracklookup.Lookuper, seedIDs []rectypes.TrackRef, poolSize int, diversitySeed *int64) ([]rectypes.Recommendation, error) {
	pool := newCandidatePool(seedIDs)

	poolIDs, err := lookup.PopularPool(poolSize)
	if err != nil {
		return nil, err
	}
	records, err := lookup.Lookup(poolIDs)
	if err != nil {
		return nil, err
	}

	rng := jitterRNG(diversitySeed)
	for _, id := range poolIDs {
		rec, ok := records[id]
		if !ok {
			continue
		}
		jitter := (rng.Float64()*2 - 1) * jitterRange
		score := clamp100(float64(rec.Popularity) + jitter)
		pool.add(rectypes.Recommendation{TrackID: id, SimilarityScore: score})
	}

	return pool.all(), nil
}
