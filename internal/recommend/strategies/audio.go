// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import (
	"github.com/sonora-audio/sonora/internal/recommend/audioindex"
	"github.com/sonora-audio/sonora/internal/recommend/normalize"
	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
)

// audioKNNFunc is either (*audioindex.Handle).KNNByTrack or
// (*audioindex.Handle).KNNClusterScoped, letting Cluster and HDBSCANKNN
// share one implementation (spec §4.7.1, §4.7.2).
type audioKNNFunc func(h *audioindex.Handle, trackID rectypes.TrackRef, k int) ([]audioindex.Neighbor, error)

// RunAudio pools each seed's k*2 neighbors (spec §4.7.1/§4.7.2 "For each
// seed, call ... Pool candidates, discard seeds, group by track_id keeping
// the maximum similarity across seeds. Record which cluster each candidate
// came from."). methodOverride forces the distance-to-similarity
// conversion (config.StrategiesConfig.SimilarityMethod); an invalid value
// falls back to the spec §4.2 table.
func RunAudio(handle *audioindex.Handle, seeds []rectypes.TrackRef, k int, knn audioKNNFunc, methodOverride normalize.Method) ([]rectypes.Recommendation, error) {
	pool := newCandidatePool(seeds)
	method := audioNormalizeMethod(handle.Descriptor(), methodOverride)

	for _, seed := range seeds {
		neighbors, err := knn(handle, seed, k*2)
		if err != nil {
			continue // unresolved/IndexError-degraded seeds are skipped, not fatal (spec §4.7)
		}
		distances := make([]float64, len(neighbors))
		for i, n := range neighbors {
			distances[i] = n.Distance
		}
		scores := scoresFromDistances(distances, method)

		seed := seed
		for i, n := range neighbors {
			clusterID, hasCluster := handle.ClusterOf(n.TrackID)
			rec := rectypes.Recommendation{
				TrackID:         n.TrackID,
				SimilarityScore: scores[i],
				RawDistance:     floatPtr(n.Distance),
				SourceSeed:      &seed,
			}
			if hasCluster {
				rec.ClusterID = intPtr(clusterID)
			}
			pool.add(rec)
		}
	}

	return pool.all(), nil
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// ByTrack adapts (*audioindex.Handle).KNNByTrack to audioKNNFunc (spec
// §4.7.2, global-audio-KNN strategy).
func ByTrack(h *audioindex.Handle, trackID rectypes.TrackRef, k int) ([]audioindex.Neighbor, error) {
	return h.KNNByTrack(trackID, k)
}

// ClusterScoped adapts (*audioindex.Handle).KNNClusterScoped to
// audioKNNFunc (spec §4.7.1, audio-cluster strategy).
func ClusterScoped(h *audioindex.Handle, trackID rectypes.TrackRef, k int) ([]audioindex.Neighbor, error) {
	return h.KNNClusterScoped(trackID, k)
}
