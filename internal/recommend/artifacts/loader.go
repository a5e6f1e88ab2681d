// SPDX-License-Identifier: AGPL-3.0-or-later

package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonora-audio/sonora/internal/metrics"
)

// Ext is the on-disk extension for the self-describing binary tensor
// format (spec §6's "<ext>" placeholder).
const Ext = "sonora"

// audioConfig mirrors the recognized keys of hdbscan_config_<name>.json
// (spec §6). Unknown keys are ignored by encoding/json by default.
type audioConfig struct {
	Approach               string `json:"approach"`
	FeatureType             string `json:"feature_type"`
	HasPCA                  bool   `json:"has_pca"`
	PCAComponents           *int   `json:"pca_components"`
	HasScaler               bool   `json:"has_scaler"`
	ClusterBased            bool   `json:"cluster_based"`
	MinClusterSize          int    `json:"min_cluster_size"`
	MinSamples              int    `json:"min_samples"`
	Metric                  string `json:"metric"`
	ClusterSelectionMethod  string `json:"cluster_selection_method"`
}

// lyricsConfig mirrors the recognized keys of lyrics_config_<name>.json.
type lyricsConfig struct {
	ModelType    string `json:"model_type"`
	HasSVD       bool   `json:"has_svd"`
	NComponents  *int   `json:"n_components"`
	NNeighbors   int    `json:"n_neighbors"`
	Metric       string `json:"metric"`
}

// songIndices is the record stored in <name>_song_indices.<ext>.
type songIndices struct {
	TrackIDs []TrackRef
}

// Load reads every variant found under modelsDir and returns validated,
// typed handles (spec §4.1). It never fails merely because one variant is
// broken: that variant is recorded in LoadResult.Failed and skipped. Load
// fails overall only when no variant in any family loaded successfully.
func Load(modelsDir string, logger zerolog.Logger) (*LoadResult, error) {
	result := &LoadResult{
		Audio:  make(map[string]*AudioVariant),
		Lyrics: make(map[string]*LyricsVariant),
	}

	audioNames, lyricsNames, err := discoverVariantNames(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("discover variants: %w", err)
	}

	for _, name := range audioNames {
		start := time.Now()
		variant, loadErr := loadAudioVariant(modelsDir, name, logger)
		outcome := "ok"
		if loadErr != nil {
			outcome = "error"
		}
		metrics.ArtifactLoadDuration.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
		if loadErr != nil {
			result.Failed = append(result.Failed, loadErr)
			logger.Warn().Str("variant", name).Str("family", "audio").Err(loadErr).Msg("audio variant rejected")
			continue
		}
		result.Audio[name] = variant
	}

	var vectorizer *LyricsVectorizer
	var trainingMeta *LyricsTrainingMetadata
	if len(lyricsNames) > 0 {
		vectorizer, err = loadSharedVectorizer(modelsDir)
		if err != nil {
			logger.Warn().Err(err).Msg("shared lyrics vectorizer failed to load; all lyrics variants disabled")
		} else {
			trainingMeta, err = loadTrainingMetadata(modelsDir)
			if err != nil {
				logger.Warn().Err(err).Msg("lyrics training metadata failed to load; all lyrics variants disabled")
				vectorizer = nil
			}
		}
	}

	if vectorizer != nil && trainingMeta != nil {
		for _, name := range lyricsNames {
			start := time.Now()
			variant, loadErr := loadLyricsVariant(modelsDir, name, vectorizer, *trainingMeta)
			outcome := "ok"
			if loadErr != nil {
				outcome = "error"
			}
			metrics.ArtifactLoadDuration.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
			if loadErr != nil {
				result.Failed = append(result.Failed, loadErr)
				logger.Warn().Str("variant", name).Str("family", "lyrics").Err(loadErr).Msg("lyrics variant rejected")
				continue
			}
			result.Lyrics[name] = variant
		}
	}

	if len(result.Audio) == 0 && len(result.Lyrics) == 0 {
		return nil, fmt.Errorf("no variant loaded from any family under %s", modelsDir)
	}
	return result, nil
}

// discoverVariantNames scans modelsDir for hdbscan_config_<name>.json and
// lyrics_config_<name>.json files and extracts the variant names, sorted
// for deterministic load order.
func discoverVariantNames(modelsDir string) (audioNames, lyricsNames []string, err error) {
	entries, err := os.ReadDir(modelsDir)
	if err != nil {
		return nil, nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasPrefix(name, "hdbscan_config_") && strings.HasSuffix(name, ".json"):
			audioNames = append(audioNames, strings.TrimSuffix(strings.TrimPrefix(name, "hdbscan_config_"), ".json"))
		case strings.HasPrefix(name, "lyrics_config_") && strings.HasSuffix(name, ".json"):
			lyricsNames = append(lyricsNames, strings.TrimSuffix(strings.TrimPrefix(name, "lyrics_config_"), ".json"))
		}
	}
	sort.Strings(audioNames)
	sort.Strings(lyricsNames)
	return audioNames, lyricsNames, nil
}

// resolveFile returns the variant-specific path if it exists, else the
// base-file fallback, reporting which via usedFallback; callers log and
// count the fallback (spec §4.1).
func resolveFile(modelsDir, variant, variantFile, baseFile string) (path string, usedFallback bool) {
	variantPath := filepath.Join(modelsDir, variantFile)
	if _, err := os.Stat(variantPath); err == nil {
		return variantPath, false
	}
	return filepath.Join(modelsDir, baseFile), true
}

func loadAudioVariant(modelsDir, name string, logger zerolog.Logger) (*AudioVariant, *ArtifactError) {
	cfgPath := filepath.Join(modelsDir, fmt.Sprintf("hdbscan_config_%s.json", name))
	cfgBytes, err := os.ReadFile(cfgPath) //nolint:gosec // path built from discovered, trusted directory listing
	if err != nil {
		return nil, &ArtifactError{Variant: name, File: cfgPath, Reason: err.Error()}
	}
	var cfg audioConfig
	if err := json.Unmarshal(cfgBytes, &cfg); err != nil {
		return nil, &ArtifactError{Variant: name, File: cfgPath, Reason: fmt.Sprintf("invalid config json: %v", err)}
	}

	metric := MetricEuclidean
	if cfg.Metric == "cosine" {
		metric = MetricCosine
	}
	projectionDim := 0
	if cfg.PCAComponents != nil {
		projectionDim = *cfg.PCAComponents
	}

	filesUsed := map[string]bool{}

	embPath, fb := resolveFile(modelsDir, name, fmt.Sprintf("%s_audio_embeddings.%s", name, Ext), fmt.Sprintf("audio_embeddings.%s", Ext))
	filesUsed[embPath] = fb
	var embeddings Matrix
	if err := loadTensor(embPath, &embeddings); err != nil {
		return nil, &ArtifactError{Variant: name, File: embPath, Reason: err.Error()}
	}

	labelsPath, fb := resolveFile(modelsDir, name, fmt.Sprintf("%s_cluster_labels.%s", name, Ext), fmt.Sprintf("cluster_labels.%s", Ext))
	filesUsed[labelsPath] = fb
	var labels []int
	if err := loadTensor(labelsPath, &labels); err != nil {
		return nil, &ArtifactError{Variant: name, File: labelsPath, Reason: err.Error()}
	}

	songPath, fb := resolveFile(modelsDir, name, fmt.Sprintf("%s_song_indices.%s", name, Ext), fmt.Sprintf("song_indices.%s", Ext))
	filesUsed[songPath] = fb
	var songs songIndices
	if err := loadTensor(songPath, &songs); err != nil {
		return nil, &ArtifactError{Variant: name, File: songPath, Reason: err.Error()}
	}

	var precomputed *PrecomputedNeighbors
	knnPath, fb := resolveFile(modelsDir, name, fmt.Sprintf("%s_knn_model.%s", name, Ext), fmt.Sprintf("knn_model.%s", Ext))
	var pc PrecomputedNeighbors
	if err := loadTensor(knnPath, &pc); err == nil {
		precomputed = &pc
		filesUsed[knnPath] = fb
	}

	for path, usedFallback := range filesUsed {
		logger.Debug().Str("variant", name).Str("family", "audio").Str("file", path).Bool("base_fallback", usedFallback).Msg("artifact file resolved")
		if usedFallback {
			metrics.ArtifactFallbackTotal.WithLabelValues(name, filepath.Base(path)).Inc()
		}
	}

	if err := validateAudioVariant(embeddings, labels, songs.TrackIDs); err != nil {
		return nil, &ArtifactError{Variant: name, File: embPath, Reason: err.Error()}
	}

	return &AudioVariant{
		Descriptor: VariantDescriptor{
			Family:         FamilyAudio,
			Name:           name,
			HasProjection:  cfg.HasPCA,
			Metric:         metric,
			ClusterScoped:  cfg.ClusterBased,
			ProjectionDim:  projectionDim,
			MinClusterSize: cfg.MinClusterSize,
		},
		Embeddings:    embeddings,
		ClusterLabels: labels,
		TrackIDs:      songs.TrackIDs,
		Precomputed:   precomputed,
	}, nil
}

// validateAudioVariant enforces spec §4.1's invariants: aligned lengths and
// no duplicate track IDs.
func validateAudioVariant(embeddings Matrix, labels []int, trackIDs []TrackRef) error {
	if embeddings.Rows != len(labels) || embeddings.Rows != len(trackIDs) {
		return fmt.Errorf("misaligned rows: embeddings=%d labels=%d track_ids=%d", embeddings.Rows, len(labels), len(trackIDs))
	}
	seen := make(map[TrackRef]struct{}, len(trackIDs))
	for _, id := range trackIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate track_id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func loadSharedVectorizer(modelsDir string) (*LyricsVectorizer, error) {
	path := filepath.Join(modelsDir, fmt.Sprintf("lyrics_tfidf_vectorizer.%s", Ext))
	var v LyricsVectorizer
	if err := loadTensor(path, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func loadTrainingMetadata(modelsDir string) (*LyricsTrainingMetadata, error) {
	path := filepath.Join(modelsDir, fmt.Sprintf("lyrics_training_metadata.%s", Ext))
	var m LyricsTrainingMetadata
	if err := loadTensor(path, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func loadLyricsVariant(modelsDir, name string, vectorizer *LyricsVectorizer, meta LyricsTrainingMetadata) (*LyricsVariant, *ArtifactError) {
	cfgPath := filepath.Join(modelsDir, fmt.Sprintf("lyrics_config_%s.json", name))
	cfgBytes, err := os.ReadFile(cfgPath) //nolint:gosec // path built from discovered, trusted directory listing
	if err != nil {
		return nil, &ArtifactError{Variant: name, File: cfgPath, Reason: err.Error()}
	}
	var cfg lyricsConfig
	if err := json.Unmarshal(cfgBytes, &cfg); err != nil {
		return nil, &ArtifactError{Variant: name, File: cfgPath, Reason: fmt.Sprintf("invalid config json: %v", err)}
	}

	metric := MetricCosine
	if cfg.Metric == "euclidean" {
		metric = MetricEuclidean
	}
	projectionDim := 0
	if cfg.NComponents != nil {
		projectionDim = *cfg.NComponents
	}

	variant := &LyricsVariant{
		Descriptor: VariantDescriptor{
			Family:        FamilyLyrics,
			Name:          name,
			HasProjection: cfg.HasSVD,
			Metric:        metric,
			ProjectionDim: projectionDim,
		},
		Vectorizer: vectorizer,
		Metadata:   meta,
	}

	if cfg.HasSVD {
		svdPath := filepath.Join(modelsDir, fmt.Sprintf("lyrics_svd_model_%s.%s", name, Ext))
		var proj Matrix
		if err := loadTensor(svdPath, &proj); err != nil {
			return nil, &ArtifactError{Variant: name, File: svdPath, Reason: err.Error()}
		}
		if proj.Rows != vectorizer.Dim() {
			return nil, &ArtifactError{Variant: name, File: svdPath, Reason: fmt.Sprintf("projection_input_dim mismatch: vectorizer=%d projection_rows=%d", vectorizer.Dim(), proj.Rows)}
		}
		variant.Projection = &proj

		knnPath := filepath.Join(modelsDir, fmt.Sprintf("lyrics_knn_model_%s.%s", name, Ext))
		var vectors Matrix
		if err := loadTensor(knnPath, &vectors); err != nil {
			return nil, &ArtifactError{Variant: name, File: knnPath, Reason: err.Error()}
		}
		if vectors.Cols != proj.Cols {
			return nil, &ArtifactError{Variant: name, File: knnPath, Reason: fmt.Sprintf("training vectors dim mismatch: projection_cols=%d vectors_cols=%d", proj.Cols, vectors.Cols)}
		}
		variant.TrainingVectors = &vectors
	} else {
		simPath := filepath.Join(modelsDir, fmt.Sprintf("lyrics_similarity_model_%s.%s", name, Ext))
		var vectors Matrix
		if err := loadTensor(simPath, &vectors); err != nil {
			return nil, &ArtifactError{Variant: name, File: simPath, Reason: err.Error()}
		}
		if vectors.Cols != vectorizer.Dim() {
			return nil, &ArtifactError{Variant: name, File: simPath, Reason: fmt.Sprintf("training vectors dim mismatch: vectorizer=%d vectors_cols=%d", vectorizer.Dim(), vectors.Cols)}
		}
		variant.TrainingVectors = &vectors
	}

	if vectors := variant.TrainingVectors; vectors.Rows != len(meta.TrainingSongs) {
		return nil, &ArtifactError{Variant: name, File: "training_metadata", Reason: fmt.Sprintf("training vectors rows=%d but training_songs=%d", vectors.Rows, len(meta.TrainingSongs))}
	}

	return variant, nil
}
