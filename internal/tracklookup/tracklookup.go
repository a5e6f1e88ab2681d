// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tracklookup defines the Track Lookup contract (C6): the host
// system's catalog of track metadata, which the engine never owns storage
// for. It only consumes it.
package tracklookup

import "github.com/sonora-audio/sonora/internal/recommend/artifacts"

// TrackRef is the shared cross-component track identifier.
type TrackRef = artifacts.TrackRef

// AudioFeatureSummary holds the fixed set of audio-derived features the
// genre-based strategy (spec §4.7.5) and enrichment responses consume.
type AudioFeatureSummary struct {
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Speechiness      float64 `json:"speechiness"`
}

// TrackRecord is the metadata the host returns for one track (spec §4.6).
type TrackRecord struct {
	ID            TrackRef `json:"id"`
	Name          string   `json:"name"`
	ArtistName    string   `json:"artist_name"`
	ArtistID      string   `json:"artist_id"`
	AlbumName     string   `json:"album_name"`
	DurationMS    int      `json:"duration_ms"`
	Popularity    int      `json:"popularity"` // 0..100
	Key           int      `json:"key"`        // 0..11
	Mode          int      `json:"mode"`       // 0|1
	Tempo         float64  `json:"tempo"`
	Year          *int     `json:"year,omitempty"`
	PreviewURL    *string  `json:"preview_url,omitempty"`
	AlbumImageURL *string  `json:"album_image_url,omitempty"`
	AudioFeatures AudioFeatureSummary `json:"audio_features"`
	Lyrics        *string  `json:"lyrics,omitempty"`
}

// Lookuper is the interface the engine requires from the host (spec §4.6).
// Implementations need not return entries for every requested ID: missing
// entries are dropped by the caller, never treated as an error.
type Lookuper interface {
	Lookup(trackIDs []TrackRef) (map[TrackRef]TrackRecord, error)

	// TracksByArtist supports the artist-based strategy (spec §4.7.4).
	TracksByArtist(artistID string) ([]TrackRef, error)

	// PopularPool returns a host-curated "popular enough" candidate set
	// used by the genre-based and global strategies (spec §4.7.5, §4.7.6).
	PopularPool(limit int) ([]TrackRef, error)
}

// LyricsAdapter adapts a Lookuper to lyricsindex.LyricsLookup's single-track
// interface by doing a one-track lookup per call.
type LyricsAdapter struct {
	Lookuper Lookuper
}

// LyricsFor returns trackID's stored lyrics, if any.
func (a LyricsAdapter) LyricsFor(trackID TrackRef) (string, bool) {
	records, err := a.Lookuper.Lookup([]TrackRef{trackID})
	if err != nil {
		return "", false
	}
	rec, ok := records[trackID]
	if !ok || rec.Lyrics == nil {
		return "", false
	}
	return *rec.Lyrics, true
}
