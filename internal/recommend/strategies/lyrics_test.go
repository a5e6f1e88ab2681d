// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
	"github.com/sonora-audio/sonora/internal/recommend/lyricsindex"
	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
)

type fakeLyrics map[rectypes.TrackRef]string

func (f fakeLyrics) LyricsFor(id rectypes.TrackRef) (string, bool) {
	text, ok := f[id]
	return text, ok
}

func fixtureLyricsHandle() *lyricsindex.Handle {
	vectorizer := &artifacts.LyricsVectorizer{
		Vocabulary: map[string]int{"love": 0, "night": 1, "rain": 2},
		IDF:        []float64{1, 1, 1},
	}
	vectors := artifacts.Matrix{
		Rows: 3, Cols: 3,
		Data: []float64{1, 1, 0, 0, 1, 1, 1, 0, 0},
	}
	variant := &artifacts.LyricsVariant{
		Descriptor:      artifacts.VariantDescriptor{Family: artifacts.FamilyLyrics, Name: "raw", Metric: artifacts.MetricCosine},
		Vectorizer:      vectorizer,
		TrainingVectors: &vectors,
		Metadata: artifacts.LyricsTrainingMetadata{
			TrainingSongs: []rectypes.TrackRef{"a", "b", "c"},
			PreprocessingRecipe: artifacts.PreprocessingRecipe{
				CaseFold: true, MinTokenLength: 1,
			},
		},
	}
	return lyricsindex.NewHandle(variant, nil)
}

func TestRunLyricsSkipsSeedsLackingLyricsButContinues(t *testing.T) {
	handle := fixtureLyricsHandle()
	lookup := fakeLyrics{"a": "love night"}
	out, fallback, err := RunLyrics(handle, lookup, []rectypes.TrackRef{"a", "b"}, 2, "")
	require.NoError(t, err)
	require.False(t, fallback)
	require.NotEmpty(t, out)
}

func TestRunLyricsFallsBackWhenAllSeedsLackLyrics(t *testing.T) {
	handle := fixtureLyricsHandle()
	lookup := fakeLyrics{}
	_, fallback, err := RunLyrics(handle, lookup, []rectypes.TrackRef{"a", "b"}, 2, "")
	require.NoError(t, err)
	require.True(t, fallback)
}
