// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lyricsindex implements the Lyrics-Text Index (C4): the
// deterministic text-preprocessing pipeline, TF-IDF vectorization, optional
// SVD projection, and KNN search over the lyrics space.
package lyricsindex

import (
	"regexp"
	"strings"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
)

var nonAlphaOrSpace = regexp.MustCompile(`[^a-z\s]`)

var collapseWhitespace = regexp.MustCompile(`\s+`)

// Preprocess runs the 8-step deterministic text-cleaning pipeline (spec
// §4.4) and returns the cleaned string. It returns ok=false when the input
// is empty or whitespace-only, or when cleaning leaves nothing behind.
func Preprocess(text string, recipe artifacts.PreprocessingRecipe, lemmatize func(string) string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	s := text
	if recipe.CaseFold {
		s = strings.ToLower(s)
	}
	if recipe.StripNonAlpha {
		s = nonAlphaOrSpace.ReplaceAllString(s, " ")
	}
	s = collapseWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	tokens := strings.Split(s, " ")
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if recipe.Lemmatize && lemmatize != nil {
			tok = lemmatize(tok)
		}
		if _, stop := recipe.StopwordSet[tok]; stop {
			continue
		}
		if len(tok) < recipe.MinTokenLength {
			continue
		}
		kept = append(kept, tok)
	}

	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, " "), true
}
