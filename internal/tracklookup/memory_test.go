// SPDX-License-Identifier: AGPL-3.0-or-later

package tracklookup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupReturnsOnlyKnownIDs(t *testing.T) {
	m := NewMemoryLookuper()
	m.Add(TrackRecord{ID: "a", Name: "Song A"})

	result, err := m.Lookup([]TrackRef{"a", "ghost"})
	require.NoError(t, err)
	require.Contains(t, result, TrackRef("a"))
	require.NotContains(t, result, TrackRef("ghost"))
}

func TestTracksByArtistFiltersAndSorts(t *testing.T) {
	m := NewMemoryLookuper()
	m.Add(TrackRecord{ID: "b", ArtistID: "x"})
	m.Add(TrackRecord{ID: "a", ArtistID: "x"})
	m.Add(TrackRecord{ID: "c", ArtistID: "y"})

	tracks, err := m.TracksByArtist("x")
	require.NoError(t, err)
	require.Equal(t, []TrackRef{"a", "b"}, tracks)
}

func TestPopularPoolOrdersByPopularityDesc(t *testing.T) {
	m := NewMemoryLookuper()
	m.Add(TrackRecord{ID: "low", Popularity: 10})
	m.Add(TrackRecord{ID: "high", Popularity: 90})
	m.Add(TrackRecord{ID: "mid", Popularity: 50})

	pool, err := m.PopularPool(2)
	require.NoError(t, err)
	require.Equal(t, []TrackRef{"high", "mid"}, pool)
}

func TestLyricsAdapterReturnsStoredLyrics(t *testing.T) {
	m := NewMemoryLookuper()
	lyrics := "la la la"
	m.Add(TrackRecord{ID: "a", Lyrics: &lyrics})

	adapter := LyricsAdapter{Lookuper: m}
	text, ok := adapter.LyricsFor("a")
	require.True(t, ok)
	require.Equal(t, "la la la", text)

	_, ok = adapter.LyricsFor("ghost")
	require.False(t, ok)
}
