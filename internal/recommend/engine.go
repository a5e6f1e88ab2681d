// SPDX-License-Identifier: AGPL-3.0-or-later

package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonora-audio/sonora/internal/metrics"
	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
	"github.com/sonora-audio/sonora/internal/recommend/audioindex"
	"github.com/sonora-audio/sonora/internal/recommend/lyricsindex"
	"github.com/sonora-audio/sonora/internal/recommend/normalize"
	"github.com/sonora-audio/sonora/internal/recommend/reccache"
	"github.com/sonora-audio/sonora/internal/recommend/registry"
	"github.com/sonora-audio/sonora/internal/recommend/strategies"
	"github.com/sonora-audio/sonora/internal/tracklookup"
)

// slowQueryThreshold is the facade-level latency above which a completed
// query is logged at warn level (spec §4.9).
const slowQueryThreshold = 1000 * time.Millisecond

// EngineConfig is the subset of internal/config.Config the Engine Facade
// needs, decoupled from the config package's koanf tags so this package has
// no config-loading dependency.
type EngineConfig struct {
	DefaultK            int
	MaxK                int
	MaxCandidates        int
	ClusterCacheSize     int
	CacheEnabled         bool
	CacheTTL             time.Duration
	CacheMaxEntries      int
	CacheShardCount      int
	GenrePoolSize        int
	GlobalPoolSize       int
	// KeepWarmVariants bounds how many variants per family stay loaded in
	// the registry at once (spec §5 "Memory"); <= 0 disables unloading.
	KeepWarmVariants int

	// EnabledStrategies lists the strategy names config.StrategiesConfig
	// registers; a request naming any other (even a structurally valid
	// one) is rejected. Empty means every strategy is enabled.
	EnabledStrategies []Strategy
	// ClusterBased gates whether the cluster strategy searches within the
	// seed's cluster (true) or across the whole variant (false).
	ClusterBased bool
	// SimilarityMethod overrides the spec §4.2 distance-to-similarity
	// table when it names a recognized normalize.Method.
	SimilarityMethod normalize.Method
	// HybridWeights overrides strategies.RunHybrid's default per-method
	// blend weights; see config.StrategiesConfig.Weights.
	HybridWeights map[Strategy]float64
}

// strategyEnabled reports whether s is both a recognized strategy name and,
// when EnabledStrategies is non-empty, among the configured set.
func (c EngineConfig) strategyEnabled(s Strategy) bool {
	if !s.Valid() {
		return false
	}
	if len(c.EnabledStrategies) == 0 {
		return true
	}
	for _, e := range c.EnabledStrategies {
		if e == s {
			return true
		}
	}
	return false
}

// Engine is the Engine Facade (C9): the single entry point that dispatches
// to strategies, enriches via track lookup, and records timings.
type Engine struct {
	audio  *registry.Registry[*audioindex.Handle]
	lyrics *registry.Registry[*lyricsindex.Handle]
	lookup tracklookup.Lookuper
	cache  *reccache.Cache
	cfg    EngineConfig
	logger zerolog.Logger
}

// NewEngine loads artifacts from modelsDir and assembles the engine. It
// fails only if Load fails overall (spec §4.1).
func NewEngine(modelsDir, defaultAudioVariant, defaultLyricsVariant string, lookup tracklookup.Lookuper, cfg EngineConfig, logger zerolog.Logger) (*Engine, error) {
	result, err := artifacts.Load(modelsDir, logger)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}

	audioHandles := make(map[string]*audioindex.Handle, len(result.Audio))
	audioDescriptors := make(map[string]artifacts.VariantDescriptor, len(result.Audio))
	for name, v := range result.Audio {
		audioHandles[name] = audioindex.NewHandle(v, cfg.ClusterCacheSize)
		audioDescriptors[name] = v.Descriptor
	}

	lyricsHandles := make(map[string]*lyricsindex.Handle, len(result.Lyrics))
	lyricsDescriptors := make(map[string]artifacts.VariantDescriptor, len(result.Lyrics))
	for name, v := range result.Lyrics {
		lyricsHandles[name] = lyricsindex.NewHandle(v, nil)
		lyricsDescriptors[name] = v.Descriptor
	}

	var audioReg *registry.Registry[*audioindex.Handle]
	if len(audioHandles) > 0 {
		active := defaultAudioVariant
		if _, ok := audioHandles[active]; !ok {
			active = firstSorted(audioHandles)
		}
		audioReg, err = registry.New(audioHandles, audioDescriptors, active, cfg.KeepWarmVariants)
		if err != nil {
			return nil, fmt.Errorf("build audio registry: %w", err)
		}
	}

	var lyricsReg *registry.Registry[*lyricsindex.Handle]
	if len(lyricsHandles) > 0 {
		active := defaultLyricsVariant
		if _, ok := lyricsHandles[active]; !ok {
			active = firstSorted(lyricsHandles)
		}
		lyricsReg, err = registry.New(lyricsHandles, lyricsDescriptors, active, cfg.KeepWarmVariants)
		if err != nil {
			return nil, fmt.Errorf("build lyrics registry: %w", err)
		}
	}

	metrics.RegistryLoadedVariants.WithLabelValues(string(artifacts.FamilyAudio)).Set(float64(len(audioHandles)))
	metrics.RegistryLoadedVariants.WithLabelValues(string(artifacts.FamilyLyrics)).Set(float64(len(lyricsHandles)))

	return &Engine{
		audio:  audioReg,
		lyrics: lyricsReg,
		lookup: lookup,
		cache:  reccache.New(cfg.CacheMaxEntries, cfg.CacheShardCount, cfg.CacheTTL),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func firstSorted[T any](m map[string]T) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// Recommend implements the recommend() operation (spec §4.9's 7-step flow).
func (e *Engine) Recommend(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	if !e.cfg.strategyEnabled(req.Strategy) {
		return Response{}, ErrUnknownStrategy
	}
	normalized := normalizeRequest(req, e.cfg.DefaultK, e.cfg.MaxK)

	audioHandle, audioName, err := e.resolveAudioVariant(normalized.Variant, normalized.Strategy)
	if err != nil {
		return Response{}, err
	}
	lyricsHandle, lyricsName, err := e.resolveLyricsVariant(normalized.Variant, normalized.Strategy)
	if err != nil {
		return Response{}, err
	}

	variantTag := e.variantTag(normalized.Strategy, audioName, lyricsName)
	filterCanonical := normalized.Filters.Canonical()

	var fallbackUsed string
	var strategyTimings map[Strategy]float64
	buildRecs := func() ([]Recommendation, error) {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		seeds, missing, err := strategies.ResolveSeeds(e.lookup, normalized.SeedIDs)
		if err != nil {
			return nil, ErrNoValidSeeds
		}
		if len(missing) > 0 {
			e.logger.Warn().Int("missing_seeds", len(missing)).Msg("skipping unresolved seed tracks")
		}
		seedIDs := make([]TrackRef, len(seeds))
		for i, s := range seeds {
			seedIDs[i] = s.ID
		}

		candidates, fb, timings, err := e.runStrategy(normalized.Strategy, audioHandle, lyricsHandle, seeds, seedIDs, normalized.K, normalized.DiversitySeed)
		if err != nil {
			return nil, err
		}
		fallbackUsed = fb
		strategyTimings = timings

		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		recordIDs := make([]TrackRef, len(candidates))
		for i, c := range candidates {
			recordIDs[i] = c.TrackID
		}
		records, _ := e.lookup.Lookup(recordIDs)

		seedArtists := make(map[string]struct{})
		for _, s := range seeds {
			if s.ArtistID != "" {
				seedArtists[s.ArtistID] = struct{}{}
			}
		}

		filtered := strategies.ApplyFilters(candidates, records, normalized.Filters, seedArtists)

		popularity := make(map[TrackRef]int, len(records))
		for id, rec := range records {
			popularity[id] = rec.Popularity
		}
		ranked := strategies.RankAndTruncate(filtered, popularity, normalized.K)

		final := make([]Recommendation, 0, len(ranked))
		for _, c := range ranked {
			if _, ok := records[c.TrackID]; ok {
				final = append(final, c)
			}
		}
		return final, nil
	}

	var final []Recommendation
	var cacheHit bool
	if e.cfg.CacheEnabled {
		cacheKey := reccache.FingerprintKey(normalized.SeedIDs, normalized.Strategy, normalized.K, filterCanonical, variantTag)
		entry, hit, err := e.cache.GetOrBuild(cacheKey, variantTag, e.cfg.CacheTTL, buildRecs)
		if err != nil {
			return Response{}, err
		}
		cacheHit = hit
		if hit {
			final = e.reEnrich(entry.Recommendations)
		} else {
			final = entry.Recommendations
		}
	} else {
		recs, err := buildRecs()
		if err != nil {
			return Response{}, err
		}
		final = recs
	}

	elapsed := time.Since(start)
	if elapsed > slowQueryThreshold {
		e.logger.Warn().Dur("elapsed", elapsed).Str("strategy", string(normalized.Strategy)).Msg("slow recommend query")
	}

	resp := Response{
		Recommendations: final,
		Strategy:        normalized.Strategy,
		VariantIDs:      VariantIDs{Audio: audioName, Lyrics: lyricsName},
		TimingMS:        float64(elapsed.Microseconds()) / 1000.0,
	}
	if !cacheHit {
		resp.FallbackUsed = fallbackUsed
		resp.StrategyTimings = strategyTimings
	}
	return resp, nil
}

// reEnrich re-validates cached recommendations against the current
// catalog, dropping any track that no longer resolves (spec §4.9 step 2).
func (e *Engine) reEnrich(recs []Recommendation) []Recommendation {
	ids := make([]TrackRef, len(recs))
	for i, r := range recs {
		ids[i] = r.TrackID
	}
	records, err := e.lookup.Lookup(ids)
	if err != nil {
		return recs
	}
	out := make([]Recommendation, 0, len(recs))
	for _, r := range recs {
		if _, ok := records[r.TrackID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// runStrategy dispatches to the selected strategy, degrading per spec §7's
// "cluster → global → popularity" fallback chain when an index fails. The
// timings map is only populated for the hybrid strategy, which blends
// several sub-strategies and reports each one's contribution latency.
func (e *Engine) runStrategy(strategy Strategy, audioHandle *audioindex.Handle, lyricsHandle *lyricsindex.Handle, seeds []tracklookup.TrackRecord, seedIDs []TrackRef, k int, diversitySeed *int64) ([]Recommendation, string, map[Strategy]float64, error) {
	switch strategy {
	case StrategyCluster:
		knn := strategies.ClusterScoped
		if !e.cfg.ClusterBased {
			knn = strategies.ByTrack
		}
		recs, fb, err := e.runAudioWithFallback(audioHandle, seedIDs, k, knn, diversitySeed)
		return recs, fb, nil, err
	case StrategyHDBSCANKNN:
		recs, fb, err := e.runAudioWithFallback(audioHandle, seedIDs, k, strategies.ByTrack, diversitySeed)
		return recs, fb, nil, err
	case StrategyLyrics:
		recs, fb, err := e.runLyrics(audioHandle, lyricsHandle, seeds, seedIDs, k, diversitySeed)
		return recs, fb, nil, err
	case StrategyArtistBased:
		recs, err := strategies.RunArtistBased(e.lookup, seeds)
		return recs, "", nil, err
	case StrategyGenreBased:
		recs, err := strategies.RunGenreBased(e.lookup, seeds, e.cfg.GenrePoolSize)
		return recs, "", nil, err
	case StrategyGlobal:
		recs, err := strategies.RunGlobal(e.lookup, seedIDs, e.cfg.GlobalPoolSize, diversitySeed)
		return recs, "", nil, err
	case StrategyHybrid:
		return e.runHybrid(audioHandle, seeds, seedIDs, k, diversitySeed)
	default:
		return nil, "", nil, ErrUnknownStrategy
	}
}

func (e *Engine) runAudioWithFallback(handle *audioindex.Handle, seedIDs []TrackRef, k int, knn func(*audioindex.Handle, TrackRef, int) ([]audioindex.Neighbor, error), diversitySeed *int64) ([]Recommendation, string, error) {
	if handle == nil {
		recs, err := strategies.RunGlobal(e.lookup, seedIDs, e.cfg.GlobalPoolSize, diversitySeed)
		return recs, "global", err
	}
	recs, err := strategies.RunAudio(handle, seedIDs, k, knn, e.cfg.SimilarityMethod)
	if err != nil {
		recs, fbErr := strategies.RunGlobal(e.lookup, seedIDs, e.cfg.GlobalPoolSize, diversitySeed)
		return recs, "global", fbErr
	}
	return recs, "", nil
}

func (e *Engine) runLyrics(audioHandle *audioindex.Handle, lyricsHandle *lyricsindex.Handle, seeds []tracklookup.TrackRecord, seedIDs []TrackRef, k int, diversitySeed *int64) ([]Recommendation, string, error) {
	if lyricsHandle == nil {
		recs, fb, err := e.runAudioWithFallback(audioHandle, seedIDs, k, strategies.ClusterScoped, diversitySeed)
		if fb == "" {
			fb = "cluster"
		}
		return recs, fb, err
	}
	adapter := tracklookup.LyricsAdapter{Lookuper: e.lookup}
	recs, allLackLyrics, err := strategies.RunLyrics(lyricsHandle, adapter, seedIDs, k, e.cfg.SimilarityMethod)
	if err != nil {
		return nil, "", err
	}
	if allLackLyrics {
		clusterRecs, fb, fbErr := e.runAudioWithFallback(audioHandle, seedIDs, k, strategies.ClusterScoped, diversitySeed)
		if fb == "" {
			fb = "cluster"
		}
		return clusterRecs, fb, fbErr
	}
	return recs, "", nil
}

func (e *Engine) runHybrid(audioHandle *audioindex.Handle, seeds []tracklookup.TrackRecord, seedIDs []TrackRef, k int, diversitySeed *int64) ([]Recommendation, string, map[Strategy]float64, error) {
	timings := make(map[Strategy]float64, 3)

	clusterStart := time.Now()
	clusterRecs, _, err := e.runAudioWithFallback(audioHandle, seedIDs, k, strategies.ClusterScoped, diversitySeed)
	timings[StrategyCluster] = recordStrategyDuration(StrategyCluster, clusterStart)
	if err != nil {
		return nil, "", nil, err
	}

	globalStart := time.Now()
	globalRecs, err := strategies.RunGlobal(e.lookup, seedIDs, e.cfg.GlobalPoolSize, diversitySeed)
	timings[StrategyGlobal] = recordStrategyDuration(StrategyGlobal, globalStart)
	if err != nil {
		return nil, "", nil, err
	}

	artistStart := time.Now()
	artistRecs, err := strategies.RunArtistBased(e.lookup, seeds)
	timings[StrategyArtistBased] = recordStrategyDuration(StrategyArtistBased, artistStart)
	if err != nil {
		return nil, "", nil, err
	}

	return strategies.RunHybrid(clusterRecs, globalRecs, artistRecs, e.cfg.HybridWeights), "", timings, nil
}

// recordStrategyDuration records a sub-strategy's contribution to a hybrid
// recommendation (spec's SUPPLEMENTED FEATURES per-strategy timing
// breakdown) and returns the elapsed milliseconds for the response field.
func recordStrategyDuration(strategy Strategy, start time.Time) float64 {
	elapsed := time.Since(start)
	metrics.StrategyDuration.WithLabelValues(string(strategy)).Observe(elapsed.Seconds())
	return float64(elapsed.Microseconds()) / 1000.0
}

// resolveAudioVariant picks the handle + name the request should use: the
// pinned variant if the request named one and the strategy needs audio, or
// the active one, or (nil, "", nil) if the strategy doesn't use audio.
func (e *Engine) resolveAudioVariant(requested string, strategy Strategy) (*audioindex.Handle, string, error) {
	if !usesAudio(strategy) || e.audio == nil {
		return nil, "", nil
	}
	if requested != "" {
		h, ok := e.audio.Handle(requested)
		if !ok {
			return nil, "", ErrUnknownVariant
		}
		return h, requested, nil
	}
	h, _, name := e.audio.Active()
	return h, name, nil
}

func (e *Engine) resolveLyricsVariant(requested string, strategy Strategy) (*lyricsindex.Handle, string, error) {
	if !usesLyrics(strategy) || e.lyrics == nil {
		return nil, "", nil
	}
	if requested != "" {
		h, ok := e.lyrics.Handle(requested)
		if !ok {
			return nil, "", ErrUnknownVariant
		}
		return h, requested, nil
	}
	h, _, name := e.lyrics.Active()
	return h, name, nil
}

func usesAudio(s Strategy) bool {
	switch s {
	case StrategyCluster, StrategyHDBSCANKNN, StrategyLyrics, StrategyHybrid:
		return true
	default:
		return false
	}
}

func usesLyrics(s Strategy) bool {
	return s == StrategyLyrics
}

// variantTag derives the cache-invalidation tag for the family (or
// families) the strategy's results actually depend on (spec §4.8).
func (e *Engine) variantTag(strategy Strategy, audioName, lyricsName string) string {
	switch strategy {
	case StrategyCluster, StrategyHDBSCANKNN, StrategyHybrid:
		return "audio:" + audioName
	case StrategyLyrics:
		return "lyrics:" + lyricsName
	default:
		return "-"
	}
}

// ListVariants implements list_variants (spec §6).
func (e *Engine) ListVariants(family artifacts.Family) []artifacts.VariantDescriptor {
	switch family {
	case artifacts.FamilyAudio:
		if e.audio == nil {
			return nil
		}
		return e.audio.ListVariants()
	case artifacts.FamilyLyrics:
		if e.lyrics == nil {
			return nil
		}
		return e.lyrics.ListVariants()
	default:
		return nil
	}
}

// SwitchVariant implements switch_variant (spec §4.5, §6): it atomically
// changes which variant answers subsequent queries and invalidates cache
// entries that depended on the prior variant.
func (e *Engine) SwitchVariant(family artifacts.Family, name string) (priorVariant string, err error) {
	switch family {
	case artifacts.FamilyAudio:
		if e.audio == nil {
			return "", ErrUnknownVariant
		}
		_, _, prior := e.audio.Active()
		if err := e.audio.Switch(name); err != nil {
			return "", ErrUnknownVariant
		}
		e.cache.InvalidateVariant("audio:" + prior)
		return prior, nil
	case artifacts.FamilyLyrics:
		if e.lyrics == nil {
			return "", ErrUnknownVariant
		}
		_, _, prior := e.lyrics.Active()
		if err := e.lyrics.Switch(name); err != nil {
			return "", ErrUnknownVariant
		}
		e.cache.InvalidateVariant("lyrics:" + prior)
		return prior, nil
	default:
		return "", ErrUnknownVariant
	}
}

// SimilarByTrack implements similar_by_track (spec §6): recommend() seeded
// by a single existing track.
func (e *Engine) SimilarByTrack(ctx context.Context, trackID TrackRef, k int, strategy Strategy) (Response, error) {
	if strategy == "" {
		strategy = StrategyCluster
	}
	records, err := e.lookup.Lookup([]TrackRef{trackID})
	if err != nil {
		return Response{}, err
	}
	if _, ok := records[trackID]; !ok {
		return Response{}, ErrNotFound
	}
	return e.Recommend(ctx, Request{SeedIDs: []TrackRef{trackID}, K: k, Strategy: strategy})
}
