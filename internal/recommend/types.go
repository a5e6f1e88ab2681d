// SPDX-License-Identifier: AGPL-3.0-or-later

package recommend

import (
	"sort"

	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
)

// TrackRef is the catalog-unique, opaque identifier shared by every
// component. Aliased from rectypes, which both this package and its
// collaborators (strategies, reccache) depend on to avoid an import cycle.
type TrackRef = rectypes.TrackRef

// Strategy names the query pipeline C7 should run.
type Strategy = rectypes.Strategy

const (
	StrategyCluster     = rectypes.StrategyCluster
	StrategyHDBSCANKNN  = rectypes.StrategyHDBSCANKNN
	StrategyLyrics      = rectypes.StrategyLyrics
	StrategyArtistBased = rectypes.StrategyArtistBased
	StrategyGenreBased  = rectypes.StrategyGenreBased
	StrategyGlobal      = rectypes.StrategyGlobal
	StrategyHybrid      = rectypes.StrategyHybrid
)

// ValidStrategies lists every strategy name the engine recognizes.
var ValidStrategies = rectypes.ValidStrategies

// FilterSpec narrows a strategy's candidates after generation but before
// truncation to k (spec §3, §4.7).
type FilterSpec = rectypes.FilterSpec

// YearRange bounds a track's release year, inclusive on both ends.
type YearRange = rectypes.YearRange

// Recommendation is one scored result (spec §3).
type Recommendation = rectypes.Recommendation

// Request is a single recommend() call (spec §3, §6).
type Request struct {
	SeedIDs       []TrackRef
	K             int
	Strategy      Strategy
	Variant       string // optional; empty means "use active variant"
	Filters       *FilterSpec
	DiversitySeed *int64 // optional, for deterministic jitter (spec §5)
}

// Response is what recommend() returns (spec §4.9, §6).
type Response struct {
	Recommendations []Recommendation
	Strategy        Strategy
	VariantIDs      VariantIDs
	TimingMS        float64
	FallbackUsed    string // optional; empty when no degradation occurred, and always empty on a cache hit
	StrategyTimings map[Strategy]float64
}

// VariantIDs names which variant answered each family for this response.
type VariantIDs struct {
	Audio  string
	Lyrics string
}

// normalizeRequest sorts seeds and fills defaults, matching spec §4.9 step 1.
func normalizeRequest(req Request, defaultK, maxK int) Request {
	out := req
	out.SeedIDs = append([]TrackRef(nil), req.SeedIDs...)
	sort.Slice(out.SeedIDs, func(i, j int) bool { return out.SeedIDs[i] < out.SeedIDs[j] })
	if out.K <= 0 {
		out.K = defaultK
	}
	if out.K > maxK {
		out.K = maxK
	}
	return out
}
