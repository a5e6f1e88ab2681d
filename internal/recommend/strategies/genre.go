// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import (
	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
	"github.com/sonora-audio/sonora/internal/tracklookup"
)

// maxReferenceTempo is the tempo that normalizedTempo maps to 1. The
// genre-based strategy averages and compares the fixed features listed in
// featureVector (spec §4.7.5), with tempo normalized into [0,1] against
// this reference before averaging.
const maxReferenceTempo = 220.0

func normalizedTempo(tempo float64) float64 {
	v := tempo / maxReferenceTempo
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func featureVector(f tracklookup.AudioFeatureSummary, tempo float64) [5]float64 {
	return [5]float64{f.Danceability, f.Energy, f.Valence, f.Acousticness, normalizedTempo(tempo)}
}

// RunGenreBased implements the genre-based strategy (spec §4.7.5):
// per-seed averaged audio-feature vector compared against a host-supplied
// popular-enough pool via normalized absolute difference.
func RunGenreBased(lookup tracklookup.Lookuper, seeds []tracklookup.TrackRecord, poolSize int) ([]rectypes.Recommendation, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	var avg [5]float64
	for _, s := range seeds {
		v := featureVector(s.AudioFeatures, s.Tempo)
		for i := range avg {
			avg[i] += v[i]
		}
	}
	for i := range avg {
		avg[i] /= float64(len(seeds))
	}

	seedIDs := make([]rectypes.TrackRef, len(seeds))
	for i, s := range seeds {
		seedIDs[i] = s.ID
	}
	pool := newCandidatePool(seedIDs)

	poolIDs, err := lookup.PopularPool(poolSize)
	if err != nil {
		return nil, err
	}
	records, err := lookup.Lookup(poolIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range poolIDs {
		rec, ok := records[id]
		if !ok {
			continue
		}
		v := featureVector(rec.AudioFeatures, rec.Tempo)
		var diffSum float64
		for i := range avg {
			d := avg[i] - v[i]
			if d < 0 {
				d = -d
			}
			diffSum += d
		}
		featureSimilarity := 1.0 - diffSum/float64(len(avg))
		if featureSimilarity < 0 {
			featureSimilarity = 0
		}
		score := clamp100(100*featureSimilarity + float64(rec.Popularity)/10.0)
		pool.add(rectypes.Recommendation{TrackID: id, SimilarityScore: score})
	}

	return pool.all(), nil
}
