// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rectypes holds the shared value types that both the Engine
// Facade (package recommend) and its collaborators (strategies, reccache)
// need to refer to. It exists purely to avoid an import cycle: strategies
// and reccache sit "below" recommend in spec §2's component graph, but
// both speak the same Recommendation/FilterSpec/Strategy vocabulary the
// facade exposes publicly. recommend re-exports every type here as an
// alias, so callers of the recommend package never see this package name.
package rectypes

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
)

// TrackRef is the catalog-unique, opaque identifier shared by every
// component. Aliased from the artifacts package, which owns the type as
// the engine's lowest layer.
type TrackRef = artifacts.TrackRef

// Strategy names the query pipeline C7 should run.
type Strategy string

const (
	StrategyCluster     Strategy = "cluster"
	StrategyHDBSCANKNN  Strategy = "hdbscan_knn"
	StrategyLyrics      Strategy = "lyrics"
	StrategyArtistBased Strategy = "artist_based"
	StrategyGenreBased  Strategy = "genre_based"
	StrategyGlobal      Strategy = "global"
	StrategyHybrid      Strategy = "hybrid"
)

// ValidStrategies lists every strategy name the engine recognizes.
var ValidStrategies = []Strategy{
	StrategyCluster, StrategyHDBSCANKNN, StrategyLyrics, StrategyArtistBased,
	StrategyGenreBased, StrategyGlobal, StrategyHybrid,
}

// Valid reports whether s is one of ValidStrategies.
func (s Strategy) Valid() bool {
	for _, v := range ValidStrategies {
		if v == s {
			return true
		}
	}
	return false
}

// FilterSpec narrows a strategy's candidates after generation but before
// truncation to k (spec §3, §4.7).
type FilterSpec struct {
	YearRange          *YearRange
	MinPopularity      *int
	ExcludeSeedArtists bool
	MaxPerArtist       *int
	ExcludeIDs         map[TrackRef]struct{}
}

// YearRange bounds a track's release year, inclusive on both ends.
type YearRange struct {
	Min int
	Max int
}

// Canonical returns a deterministic string representation of the filter,
// used as part of the cache fingerprint (spec §4.8). Two FilterSpecs with
// the same semantic content produce the same canonical string regardless
// of map iteration order.
func (f *FilterSpec) Canonical() string {
	if f == nil {
		return "-"
	}
	var b strings.Builder
	if f.YearRange != nil {
		b.WriteString("yr:")
		b.WriteString(strconv.Itoa(f.YearRange.Min))
		b.WriteByte('-')
		b.WriteString(strconv.Itoa(f.YearRange.Max))
	} else {
		b.WriteString("yr:-")
	}
	b.WriteByte('|')
	if f.MinPopularity != nil {
		b.WriteString("pop:")
		b.WriteString(strconv.Itoa(*f.MinPopularity))
	} else {
		b.WriteString("pop:-")
	}
	b.WriteByte('|')
	if f.ExcludeSeedArtists {
		b.WriteString("xsa:1")
	} else {
		b.WriteString("xsa:0")
	}
	b.WriteByte('|')
	if f.MaxPerArtist != nil {
		b.WriteString("mpa:")
		b.WriteString(strconv.Itoa(*f.MaxPerArtist))
	} else {
		b.WriteString("mpa:-")
	}
	b.WriteByte('|')
	if len(f.ExcludeIDs) > 0 {
		ids := make([]string, 0, len(f.ExcludeIDs))
		for id := range f.ExcludeIDs {
			ids = append(ids, string(id))
		}
		sort.Strings(ids)
		b.WriteString("ex:")
		b.WriteString(strings.Join(ids, ","))
	} else {
		b.WriteString("ex:-")
	}
	return b.String()
}

// Recommendation is one scored result (spec §3).
type Recommendation struct {
	TrackID         TrackRef
	SimilarityScore float64 // in [0, 100]
	RawDistance     *float64
	SourceSeed      *TrackRef
	ClusterID       *int
}
