// SPDX-License-Identifier: AGPL-3.0-or-later

package lyricsindex

import (
	"strings"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
)

// Vectorize transforms a preprocessed string into a dense TF-IDF vector of
// length vectorizer.Dim() (spec §4.4). Term frequency is raw token count;
// the vectorizer's IDF weights are applied per column.
func Vectorize(preprocessed string, vectorizer *artifacts.LyricsVectorizer) []float64 {
	vec := make([]float64, vectorizer.Dim())
	if preprocessed == "" {
		return vec
	}
	for _, tok := range strings.Split(preprocessed, " ") {
		col, ok := vectorizer.Vocabulary[tok]
		if !ok {
			continue
		}
		vec[col]++
	}
	for col := range vec {
		vec[col] *= vectorizer.IDF[col]
	}
	return vec
}

// Project multiplies a V-length dense vector through a V x K projection
// matrix, producing a K-length dense vector (spec §4.4, §3 LyricsReductionMatrix).
func Project(vec []float64, projection *artifacts.Matrix) []float64 {
	out := make([]float64, projection.Cols)
	for row := 0; row < projection.Rows; row++ {
		weight := vec[row]
		if weight == 0 {
			continue
		}
		projRow := projection.Row(row)
		for col, w := range projRow {
			out[col] += weight * w
		}
	}
	return out
}
