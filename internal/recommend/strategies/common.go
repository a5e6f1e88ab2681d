// SPDX-License-Identifier: AGPL-3.0-or-later

// Package strategies implements the Recommendation Strategies (C7): one
// query pipeline per spec §4.7 strategy name, sharing common pooling,
// filtering, and ranking behavior.
package strategies

import (
	"math/rand"
	"sort"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
	"github.com/sonora-audio/sonora/internal/recommend/normalize"
	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
	"github.com/sonora-audio/sonora/internal/tracklookup"
)

// NoValidSeedsError means every requested seed failed to resolve via
// lookup (spec §4.7 uniform failure semantics).
type NoValidSeedsError struct{}

func (e *NoValidSeedsError) Error() string { return "strategies: no valid seeds" }

// ResolveSeeds looks up every seed ID, skipping unresolved ones and
// returning them as its second result for the caller to log (spec §4.7).
// It returns NoValidSeedsError only if nothing resolved.
func ResolveSeeds(lookup tracklookup.Lookuper, seedIDs []rectypes.TrackRef) ([]tracklookup.TrackRecord, []rectypes.TrackRef, error) {
	records, err := lookup.Lookup(seedIDs)
	if err != nil {
		return nil, nil, err
	}
	resolved := make([]tracklookup.TrackRecord, 0, len(seedIDs))
	var missing []rectypes.TrackRef
	for _, id := range seedIDs {
		if rec, ok := records[id]; ok {
			resolved = append(resolved, rec)
		} else {
			missing = append(missing, id)
		}
	}
	if len(resolved) == 0 {
		return nil, missing, &NoValidSeedsError{}
	}
	return resolved, missing, nil
}

// pooled accumulates the best score seen per candidate track across
// multiple seeds (spec §4.7.1/4.7.2/4.7.3's "pool candidates ... keeping
// the maximum similarity").
type pooled struct {
	rec       rectypes.Recommendation
	bestScore float64
}

// candidatePool de-duplicates candidates by track_id, keeping the entry
// with the maximum score, and never keeping a seed (spec §4.7 (a)).
type candidatePool struct {
	seeds map[rectypes.TrackRef]struct{}
	byID  map[rectypes.TrackRef]*pooled
}

func newCandidatePool(seedIDs []rectypes.TrackRef) *candidatePool {
	seeds := make(map[rectypes.TrackRef]struct{}, len(seedIDs))
	for _, id := range seedIDs {
		seeds[id] = struct{}{}
	}
	return &candidatePool{seeds: seeds, byID: make(map[rectypes.TrackRef]*pooled)}
}

func (p *candidatePool) add(rec rectypes.Recommendation) {
	if _, isSeed := p.seeds[rec.TrackID]; isSeed {
		return
	}
	existing, ok := p.byID[rec.TrackID]
	if !ok || rec.SimilarityScore > existing.bestScore {
		p.byID[rec.TrackID] = &pooled{rec: rec, bestScore: rec.SimilarityScore}
	}
}

func (p *candidatePool) all() []rectypes.Recommendation {
	out := make([]rectypes.Recommendation, 0, len(p.byID))
	for _, e := range p.byID {
		out = append(out, e.rec)
	}
	return out
}

// scoresFromDistances converts a parallel slice of distances to [0,100]
// similarity scores via C2 (spec §4.7 (c)).
func scoresFromDistances(distances []float64, method normalize.Method) []float64 {
	sims := normalize.Normalize(distances, method)
	out := make([]float64, len(sims))
	for i, s := range sims {
		out[i] = normalize.ToScore100(s)
	}
	return out
}

// RankAndTruncate sorts candidates by (score desc, popularity desc,
// track_id asc) and truncates to k (spec §4.7 (d)). popularity looks up
// each candidate's popularity for the tie-break; missing entries rank as
// popularity 0.
func RankAndTruncate(candidates []rectypes.Recommendation, popularity map[rectypes.TrackRef]int, k int) []rectypes.Recommendation {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.SimilarityScore != b.SimilarityScore {
			return a.SimilarityScore > b.SimilarityScore
		}
		pa, pb := popularity[a.TrackID], popularity[b.TrackID]
		if pa != pb {
			return pa > pb
		}
		return a.TrackID < b.TrackID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// ApplyFilters narrows candidates per spec §3 FilterSpec / §4.7 (b). It
// must run before truncation to k.
func ApplyFilters(candidates []rectypes.Recommendation, records map[rectypes.TrackRef]tracklookup.TrackRecord, filters *rectypes.FilterSpec, seedArtists map[string]struct{}) []rectypes.Recommendation {
	if filters == nil {
		return candidates
	}

	out := make([]rectypes.Recommendation, 0, len(candidates))
	perArtist := make(map[string]int)

	for _, c := range candidates {
		rec, ok := records[c.TrackID]
		if !ok {
			continue
		}
		if filters.YearRange != nil {
			if rec.Year == nil || *rec.Year < filters.YearRange.Min || *rec.Year > filters.YearRange.Max {
				continue
			}
		}
		if filters.MinPopularity != nil && rec.Popularity < *filters.MinPopularity {
			continue
		}
		if filters.ExcludeSeedArtists {
			if _, excluded := seedArtists[rec.ArtistID]; excluded {
				continue
			}
		}
		if _, excluded := filters.ExcludeIDs[c.TrackID]; excluded {
			continue
		}
		if filters.MaxPerArtist != nil {
			if perArtist[rec.ArtistID] >= *filters.MaxPerArtist {
				continue
			}
			perArtist[rec.ArtistID]++
		}
		out = append(out, c)
	}
	return out
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// jitterRNG returns a deterministic RNG keyed by a request-scoped seed when
// one is supplied, else a fresh thread-local one (spec §5 ordering
// guarantees; spec §4.7.6 popularity jitter).
func jitterRNG(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed)) //nolint:gosec // deterministic jitter, not security-sensitive
	}
	return rand.New(rand.NewSource(rand.Int63())) //nolint:gosec // deterministic jitter, not security-sensitive
}

// audioNormalizeMethod picks the distance-to-similarity conversion for an
// audio variant. override, sourced from config.StrategiesConfig's
// similarity_method (spec §6), takes precedence over the spec §4.2 table
// when it names a recognized method; otherwise the table applies.
func audioNormalizeMethod(desc artifacts.VariantDescriptor, override normalize.Method) normalize.Method {
	if override.Valid() {
		return override
	}
	return normalize.OptimalMethod("audio_knn", string(desc.Metric))
}

func lyricsNormalizeMethod(desc artifacts.VariantDescriptor, override normalize.Method) normalize.Method {
	if override.Valid() {
		return override
	}
	if desc.HasProjection {
		return normalize.OptimalMethod("lyrics_svd_knn", string(desc.Metric))
	}
	if desc.Metric == artifacts.MetricCosine {
		return normalize.OptimalMethod("lyrics_cosine_knn", string(desc.Metric))
	}
	return normalize.OptimalMethod("", string(desc.Metric))
}
