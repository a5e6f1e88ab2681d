// SPDX-License-Identifier: AGPL-3.0-or-later

// Package artifacts implements the Artifact Loader (C1): it reads the
// offline-prepared model files (audio embeddings, cluster labels, the
// lyrics TF-IDF vectorizer and its optional SVD projection, and the
// precomputed neighbor indices that go with them) from a directory and
// produces validated, typed, read-only handles for the rest of the engine
// to consume.
//
// The on-disk tensor format is gob-encoded, gzip-compressed and
// SHA-256-checksummed, grounded on the model persistence pattern used
// elsewhere for algorithm state in this codebase's storage layer.
package artifacts

import "fmt"

// TrackRef is the catalog-unique, opaque identifier shared by every
// component (spec §3). It is owned here because the Artifact Loader is
// the lowest layer of the engine; every other package imports it from here.
type TrackRef string

// ArtifactError reports that a variant's files were missing or failed
// validation (spec §4.1, §7). The loader recovers locally: the named
// variant is disabled and the rest proceed.
type ArtifactError struct {
	Variant string
	File    string
	Reason  string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact error: variant=%s file=%s: %s", e.Variant, e.File, e.Reason)
}

// Family names which half of the model zoo a variant belongs to (spec §3 glossary).
type Family string

const (
	FamilyAudio  Family = "audio"
	FamilyLyrics Family = "lyrics"
)

// Metric names the distance function a neighbor index uses.
type Metric string

const (
	MetricEuclidean Metric = "euclidean"
	MetricCosine    Metric = "cosine"
)

// VariantDescriptor identifies one variant within a family (spec §3).
type VariantDescriptor struct {
	Family          Family
	Name            string
	HasProjection   bool
	Metric          Metric
	ClusterScoped   bool
	ProjectionDim   int // 0 when not applicable
	MinClusterSize  int // 0 when not applicable
}

// Matrix is a row-major dense N x D matrix (spec §3 AudioEmbeddingMatrix,
// and the dense lyrics projection).
type Matrix struct {
	Rows int
	Cols int
	Data []float64 // length Rows*Cols, row-major
}

// Row returns a view (not a copy) of row i. Callers must not retain it
// past the matrix's lifetime or mutate it; the matrix is shared-immutable.
func (m *Matrix) Row(i int) []float64 {
	start := i * m.Cols
	return m.Data[start : start+m.Cols]
}

// NeighborEntry is one precomputed neighbor: a row index and its distance
// from the query row it was computed for.
type NeighborEntry struct {
	Row      int
	Distance float64
}

// PrecomputedNeighbors is an optional serialized KNN index: for each row,
// its K nearest neighbors by the variant's metric, already sorted by
// ascending distance then ascending row index (spec §4.3 tie-break).
type PrecomputedNeighbors struct {
	K         int
	Neighbors [][]NeighborEntry // length Rows; Neighbors[i] are row i's neighbors
}

// PreprocessingRecipe is the deterministic lyrics text-cleaning pipeline
// configuration that training used (spec §3 LyricsTrainingMetadata, §4.4).
type PreprocessingRecipe struct {
	CaseFold       bool
	StripNonAlpha  bool
	Lemmatize      bool
	StopwordSet    map[string]struct{}
	MinTokenLength int
}

// LyricsTrainingMetadata maps lyrics-index rows back to tracks and records
// the exact preprocessing recipe training used (spec §3).
type LyricsTrainingMetadata struct {
	TrainingSongs       []TrackRef
	PreprocessingRecipe PreprocessingRecipe
}

// LyricsVectorizer is a learned TF-IDF transform: vocabulary plus IDF
// weights (spec §3). It is shared across all lyrics variants.
type LyricsVectorizer struct {
	Vocabulary map[string]int // token -> column index
	IDF        []float64      // length len(Vocabulary)
}

// Dim returns the vectorizer's output dimensionality V.
func (v *LyricsVectorizer) Dim() int {
	return len(v.IDF)
}

// AudioVariant bundles one loaded audio-family variant (spec §3).
type AudioVariant struct {
	Descriptor    VariantDescriptor
	Embeddings    Matrix // N x D
	ClusterLabels []int  // length N, -1 = noise
	TrackIDs      []TrackRef
	Precomputed   *PrecomputedNeighbors // optional
}

// LyricsVariant bundles one loaded lyrics-family variant (spec §3).
//
// TrainingVectors holds the (possibly projected) vector for every training
// row in Metadata.TrainingSongs order — the reference set a query vector is
// searched against. This is what the offline trainer's fitted neighbor
// index reduces to once loaded: a queryable dense matrix, not merely a
// precomputed pairwise table, since knn_by_lyrics must answer arbitrary
// free-text queries outside the training set (spec §4.4).
type LyricsVariant struct {
	Descriptor      VariantDescriptor
	Vectorizer      *LyricsVectorizer // shared pointer across variants
	Projection      *Matrix           // V x K, present only if Descriptor.HasProjection
	TrainingVectors *Matrix           // N_lyrics x dim, dim = ProjectionDim if HasProjection else Vectorizer.Dim()
	Metadata        LyricsTrainingMetadata
}

// LoadResult is everything the loader produced from one directory (spec §4.1).
type LoadResult struct {
	Audio  map[string]*AudioVariant
	Lyrics map[string]*LyricsVariant
	Failed []*ArtifactError
}
