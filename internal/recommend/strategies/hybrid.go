// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import "github.com/sonora-audio/sonora/internal/recommend/rectypes"

// defaultHybridWeights are the spec §4.7.7 per-method weights used when
// config.StrategiesConfig.Weights does not name a method.
var defaultHybridWeights = map[rectypes.Strategy]float64{
	rectypes.StrategyCluster:     0.4,
	rectypes.StrategyGlobal:      0.3,
	rectypes.StrategyArtistBased: 0.3,
}

const diversityBonusPerMethod = 5.0

// RunHybrid blends the cluster, global, and artist_based candidate lists:
// hybrid_score = Σ wᵢ·sᵢ over the methods that produced the candidate (0
// otherwise), plus 5 points per contributing method ("diversity bonus"),
// clamped to [0,100] (spec §4.7.7). weights (config.StrategiesConfig.Weights,
// keyed by strategy name) override defaultHybridWeights entry-by-entry and
// are renormalized to sum to 1 before blending; a nil or all-zero weights
// map falls back to the defaults untouched.
func RunHybrid(cluster, global, artistBased []rectypes.Recommendation, weights map[rectypes.Strategy]float64) []rectypes.Recommendation {
	w := resolveHybridWeights(weights)

	type accum struct {
		rec      rectypes.Recommendation
		weighted float64
		hitCount int
		haveRec  bool
	}
	byID := make(map[rectypes.TrackRef]*accum)

	blend := func(candidates []rectypes.Recommendation, weight float64) {
		for _, c := range candidates {
			a, ok := byID[c.TrackID]
			if !ok {
				a = &accum{}
				byID[c.TrackID] = a
			}
			a.weighted += weight * c.SimilarityScore
			a.hitCount++
			if !a.haveRec || c.SimilarityScore > a.rec.SimilarityScore {
				a.rec = c
				a.haveRec = true
			}
		}
	}

	blend(cluster, w[rectypes.StrategyCluster])
	blend(global, w[rectypes.StrategyGlobal])
	blend(artistBased, w[rectypes.StrategyArtistBased])

	out := make([]rectypes.Recommendation, 0, len(byID))
	for id, a := range byID {
		score := clamp100(a.weighted + diversityBonusPerMethod*float64(a.hitCount))
		rec := a.rec
		rec.TrackID = id
		rec.SimilarityScore = score
		out = append(out, rec)
	}
	return out
}

// resolveHybridWeights overlays configured weights onto the defaults, then
// renormalizes the cluster/global/artist_based trio to sum to 1.
func resolveHybridWeights(configured map[rectypes.Strategy]float64) map[rectypes.Strategy]float64 {
	w := make(map[rectypes.Strategy]float64, len(defaultHybridWeights))
	for k, v := range defaultHybridWeights {
		w[k] = v
	}
	for _, k := range [...]rectypes.Strategy{rectypes.StrategyCluster, rectypes.StrategyGlobal, rectypes.StrategyArtistBased} {
		if v, ok := configured[k]; ok && v > 0 {
			w[k] = v
		}
	}

	var total float64
	for _, v := range w {
		total += v
	}
	if total <= 0 {
		return defaultHybridWeights
	}
	for k, v := range w {
		w[k] = v / total
	}
	return w
}
