// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/sonora-audio/sonora/internal/config"
	"github.com/sonora-audio/sonora/internal/metrics"
	"github.com/sonora-audio/sonora/internal/recommend"
	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
)

// api exposes the logical operations of spec §6 (recommend, list_variants,
// switch_variant, similar_by_track) as thin JSON handlers over Chi (ADR-0016
// in this codebase's lineage): route grouping plus the chi/cors and
// chi/httprate middleware this stack already reaches for, rather than
// hand-rolling CORS and rate limiting on top of the bare stdlib mux.
type api struct {
	engine *recommend.Engine
	logger zerolog.Logger
	server config.ServerConfig
}

func newAPI(engine *recommend.Engine, logger zerolog.Logger, server config.ServerConfig) *api {
	return &api{engine: engine, logger: logger, server: server}
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.server.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	requests, window := a.server.RateLimitRequests, a.server.RateLimitWindow
	if requests > 0 && window > 0 {
		r.Use(httprate.Limit(requests, window, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Post("/v1/recommend", a.handleRecommend)
	r.Get("/v1/variants/{family}", a.handleListVariants)
	r.Post("/v1/variants/{family}/switch", a.handleSwitchVariant)
	r.Post("/v1/similar", a.handleSimilarByTrack)
	r.Get("/healthz", a.handleHealthz)
	return r
}

// apiResponse is the envelope every handler replies with: exactly one of
// Data or Error is populated.
type apiResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiResponse{Status: "error", Error: &apiError{Code: code, Message: message}})
}

// recommendRequest is the wire shape of the recommend() operation's input
// (spec §6). filters is decoded loosely and translated into a
// rectypes.FilterSpec because optional map/pointer fields don't round-trip
// cleanly through a single struct tag set.
type recommendRequest struct {
	SeedIDs       []string           `json:"seed_ids"`
	K             int                `json:"k"`
	Strategy      string             `json:"strategy"`
	Variant       string             `json:"variant,omitempty"`
	Filters       *filterSpecWire    `json:"filters,omitempty"`
	DiversitySeed *int64             `json:"diversity_seed,omitempty"`
}

type filterSpecWire struct {
	YearMin            *int     `json:"year_min,omitempty"`
	YearMax            *int     `json:"year_max,omitempty"`
	MinPopularity      *int     `json:"min_popularity,omitempty"`
	ExcludeSeedArtists bool     `json:"exclude_seed_artists,omitempty"`
	MaxPerArtist       *int     `json:"max_per_artist,omitempty"`
	ExcludeIDs         []string `json:"exclude_ids,omitempty"`
}

func (f *filterSpecWire) toFilterSpec() *recommend.FilterSpec {
	if f == nil {
		return nil
	}
	spec := &recommend.FilterSpec{
		MinPopularity:      f.MinPopularity,
		ExcludeSeedArtists: f.ExcludeSeedArtists,
		MaxPerArtist:       f.MaxPerArtist,
	}
	if f.YearMin != nil && f.YearMax != nil {
		spec.YearRange = &recommend.YearRange{Min: *f.YearMin, Max: *f.YearMax}
	}
	if len(f.ExcludeIDs) > 0 {
		spec.ExcludeIDs = make(map[recommend.TrackRef]struct{}, len(f.ExcludeIDs))
		for _, id := range f.ExcludeIDs {
			spec.ExcludeIDs[recommend.TrackRef(id)] = struct{}{}
		}
	}
	return spec
}

type recommendationWire struct {
	TrackID         recommend.TrackRef `json:"track_id"`
	SimilarityScore float64            `json:"similarity_score"`
	SourceSeed      *recommend.TrackRef `json:"source_seed,omitempty"`
	ClusterID       *int                `json:"cluster_id,omitempty"`
}

type recommendResponseWire struct {
	Recommendations []recommendationWire          `json:"recommendations"`
	Strategy        recommend.Strategy            `json:"strategy"`
	VariantIDs      recommend.VariantIDs          `json:"variant_ids"`
	TimingMS        float64                       `json:"timing_ms"`
	FallbackUsed    string                         `json:"fallback_used,omitempty"`
	StrategyTimings map[recommend.Strategy]float64 `json:"strategy_timings_ms,omitempty"`
}

func wireResponse(resp recommend.Response) recommendResponseWire {
	out := recommendResponseWire{
		Strategy:        resp.Strategy,
		VariantIDs:      resp.VariantIDs,
		TimingMS:        resp.TimingMS,
		FallbackUsed:    resp.FallbackUsed,
		StrategyTimings: resp.StrategyTimings,
	}
	out.Recommendations = make([]recommendationWire, len(resp.Recommendations))
	for i, r := range resp.Recommendations {
		out.Recommendations[i] = recommendationWire{
			TrackID:         r.TrackID,
			SimilarityScore: r.SimilarityScore,
			SourceSeed:      r.SourceSeed,
			ClusterID:       r.ClusterID,
		}
	}
	return out
}

func (a *api) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed JSON body")
		return
	}

	seedIDs := make([]recommend.TrackRef, len(req.SeedIDs))
	for i, id := range req.SeedIDs {
		seedIDs[i] = recommend.TrackRef(id)
	}

	engineReq := recommend.Request{
		SeedIDs:       seedIDs,
		K:             req.K,
		Strategy:      recommend.Strategy(req.Strategy),
		Variant:       req.Variant,
		Filters:       req.Filters.toFilterSpec(),
		DiversitySeed: req.DiversitySeed,
	}

	start := time.Now()
	resp, err := a.engine.Recommend(r.Context(), engineReq)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RequestDuration.WithLabelValues(req.Strategy, outcome).Observe(time.Since(start).Seconds())
	metrics.RequestsTotal.WithLabelValues(req.Strategy, outcome).Inc()

	if err != nil {
		a.writeRecommendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Status: "ok", Data: wireResponse(resp)})
}

func (a *api) writeRecommendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recommend.ErrNoValidSeeds):
		writeError(w, http.StatusUnprocessableEntity, "NO_VALID_SEEDS", err.Error())
	case errors.Is(err, recommend.ErrUnknownStrategy):
		writeError(w, http.StatusBadRequest, "UNKNOWN_STRATEGY", err.Error())
	case errors.Is(err, recommend.ErrUnknownVariant):
		writeError(w, http.StatusBadRequest, "UNKNOWN_VARIANT", err.Error())
	case errors.Is(err, recommend.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, recommend.ErrCancelled):
		writeError(w, http.StatusRequestTimeout, "CANCELLED", err.Error())
	default:
		a.logger.Error().Err(err).Msg("recommend failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func (a *api) handleListVariants(w http.ResponseWriter, r *http.Request) {
	family := artifacts.Family(chi.URLParam(r, "family"))
	if family != artifacts.FamilyAudio && family != artifacts.FamilyLyrics {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "family must be audio or lyrics")
		return
	}
	descriptors := a.engine.ListVariants(family)
	writeJSON(w, http.StatusOK, apiResponse{Status: "ok", Data: descriptors})
}

type switchVariantRequest struct {
	Name string `json:"name"`
}

type switchVariantResponse struct {
	OK            bool   `json:"ok"`
	PriorVariant  string `json:"prior_variant"`
}

func (a *api) handleSwitchVariant(w http.ResponseWriter, r *http.Request) {
	family := artifacts.Family(chi.URLParam(r, "family"))
	if family != artifacts.FamilyAudio && family != artifacts.FamilyLyrics {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "family must be audio or lyrics")
		return
	}
	var req switchVariantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "name is required")
		return
	}

	prior, err := a.engine.SwitchVariant(family, req.Name)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RegistrySwitchesTotal.WithLabelValues(string(family), outcome).Inc()
	if err != nil {
		writeError(w, http.StatusBadRequest, "UNKNOWN_VARIANT", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Status: "ok", Data: switchVariantResponse{OK: true, PriorVariant: prior}})
}

type similarByTrackRequest struct {
	TrackID  string `json:"track_id"`
	K        int    `json:"k"`
	Strategy string `json:"strategy,omitempty"`
}

func (a *api) handleSimilarByTrack(w http.ResponseWriter, r *http.Request) {
	var req similarByTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "track_id is required")
		return
	}
	resp, err := a.engine.SimilarByTrack(r.Context(), recommend.TrackRef(req.TrackID), req.K, recommend.Strategy(req.Strategy))
	if err != nil {
		a.writeRecommendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Status: "ok", Data: wireResponse(resp)})
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{Status: "ok", Data: map[string]string{"status": "serving"}})
}

