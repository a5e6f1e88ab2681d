// SPDX-License-Identifier: AGPL-3.0-or-later

package lyricsindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
)

type fakeLyricsLookup map[artifacts.TrackRef]string

func (f fakeLyricsLookup) LyricsFor(id artifacts.TrackRef) (string, bool) {
	text, ok := f[id]
	return text, ok
}

func recipe() artifacts.PreprocessingRecipe {
	return artifacts.PreprocessingRecipe{
		CaseFold:       true,
		StripNonAlpha:  true,
		MinTokenLength: 3,
		StopwordSet:    map[string]struct{}{"the": {}, "a": {}},
	}
}

func fixtureVariant() *artifacts.LyricsVariant {
	vectorizer := &artifacts.LyricsVectorizer{
		Vocabulary: map[string]int{"love": 0, "night": 1, "rain": 2},
		IDF:        []float64{1.0, 1.0, 1.0},
	}
	vectors := artifacts.Matrix{
		Rows: 3, Cols: 3,
		Data: []float64{
			1, 1, 0, // song a: love+night
			0, 1, 1, // song b: night+rain
			1, 0, 0, // song c: love only
		},
	}
	return &artifacts.LyricsVariant{
		Descriptor:      artifacts.VariantDescriptor{Family: artifacts.FamilyLyrics, Name: "raw", Metric: artifacts.MetricCosine},
		Vectorizer:      vectorizer,
		TrainingVectors: &vectors,
		Metadata: artifacts.LyricsTrainingMetadata{
			TrainingSongs:       []artifacts.TrackRef{"a", "b", "c"},
			PreprocessingRecipe: recipe(),
		},
	}
}

func TestKNNByLyricsReturnsClosestTrainingRows(t *testing.T) {
	h := NewHandle(fixtureVariant(), nil)
	neighbors, err := h.KNNByLyrics("love night rain", 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
}

func TestKNNByLyricsEmptyTextIsNoLyrics(t *testing.T) {
	h := NewHandle(fixtureVariant(), nil)
	_, err := h.KNNByLyrics("   ", 2)
	require.Error(t, err)
	var nle *NoLyricsError
	require.ErrorAs(t, err, &nle)
}

func TestKNNByTrackExcludesOwnTrainingRow(t *testing.T) {
	h := NewHandle(fixtureVariant(), nil)
	lookup := fakeLyricsLookup{"a": "love night"}
	neighbors, err := h.KNNByTrack("a", 2, lookup)
	require.NoError(t, err)
	for _, n := range neighbors {
		require.NotEqual(t, artifacts.TrackRef("a"), n.TrackID)
	}
}

func TestKNNByTrackMissingLyricsFails(t *testing.T) {
	h := NewHandle(fixtureVariant(), nil)
	_, err := h.KNNByTrack("z", 2, fakeLyricsLookup{})
	require.Error(t, err)
	var nle *NoLyricsError
	require.ErrorAs(t, err, &nle)
}

func TestPreprocessDropsStopwordsAndShortTokens(t *testing.T) {
	clean, ok := Preprocess("The Rain in Spain!! a-b", recipe(), nil)
	require.True(t, ok)
	require.Equal(t, "rain spain", clean)
}

func TestPreprocessEmptyInputFails(t *testing.T) {
	_, ok := Preprocess("", recipe(), nil)
	require.False(t, ok)
}

func TestPreprocessAllStopwordsLeavesNothing(t *testing.T) {
	_, ok := Preprocess("the a", recipe(), nil)
	require.False(t, ok)
}
