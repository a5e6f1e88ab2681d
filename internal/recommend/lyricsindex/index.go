// SPDX-License-Identifier: AGPL-3.0-or-later

package lyricsindex

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
)

// Neighbor is one result of a lyrics KNN query (spec §4.4).
type Neighbor struct {
	TrackID  artifacts.TrackRef
	Distance float64
}

// NoLyricsError reports that a track has no stored lyrics to query with.
type NoLyricsError struct {
	TrackID artifacts.TrackRef
}

func (e *NoLyricsError) Error() string {
	return fmt.Sprintf("lyricsindex: track %q has no lyrics", e.TrackID)
}

// LyricsLookup is the subset of Track Lookup (C6) this index needs: the raw
// lyrics text for a track, if any.
type LyricsLookup interface {
	LyricsFor(trackID artifacts.TrackRef) (string, bool)
}

// Lemmatizer applies the configured lemmatization step; nil means no-op.
type Lemmatizer func(string) string

// Handle is a read-only, shared-immutable view over one loaded lyrics
// variant. Safe for concurrent use.
type Handle struct {
	variant    *artifacts.LyricsVariant
	rowByTrack map[artifacts.TrackRef]int
	lemmatize  Lemmatizer
}

// NewHandle builds a Handle over variant.
func NewHandle(variant *artifacts.LyricsVariant, lemmatize Lemmatizer) *Handle {
	rowByTrack := make(map[artifacts.TrackRef]int, len(variant.Metadata.TrainingSongs))
	for i, id := range variant.Metadata.TrainingSongs {
		rowByTrack[id] = i
	}
	return &Handle{variant: variant, rowByTrack: rowByTrack, lemmatize: lemmatize}
}

// Descriptor returns the variant descriptor this handle serves.
func (h *Handle) Descriptor() artifacts.VariantDescriptor {
	return h.variant.Descriptor
}

// KNNByLyrics preprocesses and vectorizes text, then returns its k nearest
// neighbors by the variant's metric (spec §4.4). Returns NoLyricsError if
// preprocessing empties the input.
func (h *Handle) KNNByLyrics(text string, k int) ([]Neighbor, error) {
	clean, ok := Preprocess(text, h.variant.Metadata.PreprocessingRecipe, h.lemmatize)
	if !ok {
		return nil, &NoLyricsError{}
	}

	vec := Vectorize(clean, h.variant.Vectorizer)
	if h.variant.Projection != nil {
		vec = Project(vec, h.variant.Projection)
	}

	return h.knnAgainstAll(vec, -1, k), nil
}

// KNNByTrack looks up trackID's lyrics via lookup and delegates to
// KNNByLyrics; fails with NoLyricsError if the track has none (spec §4.4).
func (h *Handle) KNNByTrack(trackID artifacts.TrackRef, k int, lookup LyricsLookup) ([]Neighbor, error) {
	text, ok := lookup.LyricsFor(trackID)
	if !ok || text == "" {
		return nil, &NoLyricsError{TrackID: trackID}
	}

	row, isTrainingRow := h.rowByTrack[trackID]
	clean, ok := Preprocess(text, h.variant.Metadata.PreprocessingRecipe, h.lemmatize)
	if !ok {
		return nil, &NoLyricsError{TrackID: trackID}
	}
	vec := Vectorize(clean, h.variant.Vectorizer)
	if h.variant.Projection != nil {
		vec = Project(vec, h.variant.Projection)
	}

	excludeRow := -1
	if isTrainingRow {
		excludeRow = row
	}
	return h.knnAgainstAll(vec, excludeRow, k), nil
}

// knnAgainstAll brute-force searches every training row for the k closest
// to query, optionally excluding one row (the query's own training row, if
// any), tie-broken by ascending row index.
func (h *Handle) knnAgainstAll(query []float64, excludeRow, k int) []Neighbor {
	n := len(h.variant.Metadata.TrainingSongs)
	metric := h.variant.Descriptor.Metric

	pq := make(farHeap, 0, k+1)
	heap.Init(&pq)

	for row := 0; row < n; row++ {
		if row == excludeRow {
			continue
		}
		rowVec := h.variant.TrainingVectors.Row(row)
		var d float64
		if metric == artifacts.MetricCosine {
			d = cosineDistance(query, rowVec)
		} else {
			d = euclidean(query, rowVec)
		}
		entry := heapEntry{row: row, distance: d}
		if pq.Len() < k {
			heap.Push(&pq, entry)
		} else if better(entry, pq[0]) {
			heap.Pop(&pq)
			heap.Push(&pq, entry)
		}
	}

	entries := make([]heapEntry, pq.Len())
	copy(entries, pq)
	sortEntries(entries)

	out := make([]Neighbor, len(entries))
	for i, e := range entries {
		out[i] = Neighbor{TrackID: h.variant.Metadata.TrainingSongs[e.row], Distance: e.distance}
	}
	return out
}

func cosineDistance(a, b []float64) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 1.0
	}
	cos := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	return 1 - cos
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func better(a, b heapEntry) bool {
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	return a.row < b.row
}

func sortEntries(entries []heapEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && better(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

type heapEntry struct {
	row      int
	distance float64
}

type farHeap []heapEntry

func (f farHeap) Len() int { return len(f) }
func (f farHeap) Less(i, j int) bool {
	if f[i].distance != f[j].distance {
		return f[i].distance > f[j].distance
	}
	return f[i].row > f[j].row
}
func (f farHeap) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *farHeap) Push(x interface{}) {
	*f = append(*f, x.(heapEntry))
}
func (f *farHeap) Pop() interface{} {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}
