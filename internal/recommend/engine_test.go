// SPDX-License-Identifier: AGPL-3.0-or-later

package recommend

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
	"github.com/sonora-audio/sonora/internal/recommend/audioindex"
	"github.com/sonora-audio/sonora/internal/recommend/reccache"
	"github.com/sonora-audio/sonora/internal/recommend/registry"
	"github.com/sonora-audio/sonora/internal/tracklookup"
)

// fixtureAudioVariant is a 2D, 2-cluster fixture (a, b, c in cluster 0;
// d, e in cluster 1; no noise point), modelled on the audioindex package's
// unexported test fixture without that fixture's noise track.
func fixtureAudioVariant(name string) *artifacts.AudioVariant {
	data := []float64{
		0, 0, // a
		0, 1, // b
		1, 0, // c
		10, 10, // d
		10, 11, // e
	}
	return &artifacts.AudioVariant{
		Descriptor:    artifacts.VariantDescriptor{Family: artifacts.FamilyAudio, Name: name, Metric: artifacts.MetricEuclidean, ClusterScoped: true},
		Embeddings:    artifacts.Matrix{Rows: 5, Cols: 2, Data: data},
		ClusterLabels: []int{0, 0, 0, 1, 1},
		TrackIDs:      []artifacts.TrackRef{"a", "b", "c", "d", "e"},
	}
}

func newTestEngine(t *testing.T) (*Engine, tracklookup.Lookuper) {
	t.Helper()

	variant := fixtureAudioVariant("v1")
	handle := audioindex.NewHandle(variant, 8)
	audioReg, err := registry.New(
		map[string]*audioindex.Handle{"v1": handle},
		map[string]artifacts.VariantDescriptor{"v1": variant.Descriptor},
		"v1",
		2,
	)
	require.NoError(t, err)

	lookup := tracklookup.NewMemoryLookuper()
	lookup.Add(tracklookup.TrackRecord{ID: "a", ArtistID: "art-a", Popularity: 50})
	lookup.Add(tracklookup.TrackRecord{ID: "b", ArtistID: "art-b", Popularity: 40})
	lookup.Add(tracklookup.TrackRecord{ID: "c", ArtistID: "art-c", Popularity: 30})
	lookup.Add(tracklookup.TrackRecord{ID: "d", ArtistID: "art-d", Popularity: 20})
	lookup.Add(tracklookup.TrackRecord{ID: "e", ArtistID: "art-e", Popularity: 10})

	cfg := EngineConfig{
		DefaultK:        10,
		MaxK:            50,
		MaxCandidates:   100,
		CacheEnabled:    true,
		CacheMaxEntries: 64,
		CacheShardCount: 4,
		GenrePoolSize:   10,
		GlobalPoolSize:  10,
		ClusterBased:    true,
	}

	engine := &Engine{
		audio:  audioReg,
		lookup: lookup,
		cache:  reccache.New(cfg.CacheMaxEntries, cfg.CacheShardCount, cfg.CacheTTL),
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	return engine, lookup
}

func TestRecommendClusterStrategyExcludesSeed(t *testing.T) {
	engine, _ := newTestEngine(t)

	resp, err := engine.Recommend(context.Background(), Request{
		SeedIDs:  []TrackRef{"a"},
		K:        2,
		Strategy: StrategyCluster,
	})
	require.NoError(t, err)
	require.Equal(t, StrategyCluster, resp.Strategy)
	require.Equal(t, "v1", resp.VariantIDs.Audio)
	for _, rec := range resp.Recommendations {
		require.NotEqual(t, TrackRef("a"), rec.TrackID)
		require.Contains(t, []TrackRef{"b", "c"}, rec.TrackID)
	}
}

func TestRecommendUnknownStrategyIsRejected(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Recommend(context.Background(), Request{
		SeedIDs:  []TrackRef{"a"},
		K:        2,
		Strategy: Strategy("not-a-real-strategy"),
	})
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRecommendNoValidSeedsIsSurfaced(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Recommend(context.Background(), Request{
		SeedIDs:  []TrackRef{"does-not-exist"},
		K:        2,
		Strategy: StrategyCluster,
	})
	require.ErrorIs(t, err, ErrNoValidSeeds)
}

func TestRecommendCacheReturnsSameRecommendationsOnSecondCall(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := Request{SeedIDs: []TrackRef{"a"}, K: 2, Strategy: StrategyCluster}
	first, err := engine.Recommend(context.Background(), req)
	require.NoError(t, err)

	second, err := engine.Recommend(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.Recommendations, second.Recommendations)
}

func TestSwitchVariantInvalidatesDependentCacheEntries(t *testing.T) {
	engine, lookup := newTestEngine(t)
	mem := lookup.(*tracklookup.MemoryLookuper)
	mem.Add(tracklookup.TrackRecord{ID: "f", ArtistID: "art-f", Popularity: 5})

	v2 := fixtureAudioVariant("v2")
	v2.TrackIDs = append(v2.TrackIDs, "f")
	v2.ClusterLabels = append(v2.ClusterLabels, 0)
	v2.Embeddings.Rows++
	v2.Embeddings.Data = append(v2.Embeddings.Data, 0.5, 0.5)
	engine.audio.AddVariant("v2", audioindex.NewHandle(v2, 8), v2.Descriptor)

	req := Request{SeedIDs: []TrackRef{"a"}, K: 3, Strategy: StrategyCluster}
	r1, err := engine.Recommend(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "v1", r1.VariantIDs.Audio)
	require.Equal(t, 1, engine.cache.Len())

	prior, err := engine.SwitchVariant(artifacts.FamilyAudio, "v2")
	require.NoError(t, err)
	require.Equal(t, "v1", prior)
	require.Equal(t, 0, engine.cache.Len())

	r2, err := engine.Recommend(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "v2", r2.VariantIDs.Audio)
}

func TestSimilarByTrackUnknownTrackIsNotFound(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.SimilarByTrack(context.Background(), "does-not-exist", 2, StrategyCluster)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecommendRejectsStrategyNotInEnabledList(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.cfg.EnabledStrategies = []Strategy{StrategyGlobal}

	_, err := engine.Recommend(context.Background(), Request{
		SeedIDs:  []TrackRef{"a"},
		K:        2,
		Strategy: StrategyCluster,
	})
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRecommendAllowsStrategyInEnabledList(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.cfg.EnabledStrategies = []Strategy{StrategyCluster}

	_, err := engine.Recommend(context.Background(), Request{
		SeedIDs:  []TrackRef{"a"},
		K:        2,
		Strategy: StrategyCluster,
	})
	require.NoError(t, err)
}

func TestClusterBasedFalseSearchesWholeVariantNotJustCluster(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.cfg.ClusterBased = false

	resp, err := engine.Recommend(context.Background(), Request{
		SeedIDs:  []TrackRef{"a"},
		K:        4,
		Strategy: StrategyCluster,
	})
	require.NoError(t, err)
	var sawOutsideCluster bool
	for _, rec := range resp.Recommendations {
		if rec.TrackID == "d" || rec.TrackID == "e" {
			sawOutsideCluster = true
		}
	}
	require.True(t, sawOutsideCluster, "expected cluster strategy to reach outside the seed's cluster when cluster_based is disabled")
}
