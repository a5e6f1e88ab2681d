// SPDX-License-Identifier: AGPL-3.0-or-later

package strategies

import (
	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
	"github.com/sonora-audio/sonora/internal/tracklookup"
)

// RunArtistBased implements the artist-based strategy (spec §4.7.4): fetch
// other tracks by each seed's primary artist, scoring same-artist matches
// at a base of 85 and others at 30, plus popularity/10, clamped.
func RunArtistBased(lookup tracklookup.Lookuper, seeds []tracklookup.TrackRecord) ([]rectypes.Recommendation, error) {
	seedIDs := make([]rectypes.TrackRef, len(seeds))
	for i, s := range seeds {
		seedIDs[i] = s.ID
	}
	pool := newCandidatePool(seedIDs)

	seedArtists := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		if s.ArtistID != "" {
			seedArtists[s.ArtistID] = struct{}{}
		}
	}

	candidateIDs := make(map[rectypes.TrackRef]struct{})
	for artistID := range seedArtists {
		tracks, err := lookup.TracksByArtist(artistID)
		if err != nil {
			continue
		}
		for _, id := range tracks {
			candidateIDs[id] = struct{}{}
		}
	}

	ids := make([]rectypes.TrackRef, 0, len(candidateIDs))
	for id := range candidateIDs {
		ids = append(ids, id)
	}
	records, err := lookup.Lookup(ids)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		rec, ok := records[id]
		if !ok {
			continue
		}
		base := 30.0
		if _, same := seedArtists[rec.ArtistID]; same {
			base = 85.0
		}
		score := clamp100(base + float64(rec.Popularity)/10.0)
		pool.add(rectypes.Recommendation{TrackID: id, SimilarityScore: score})
	}

	return pool.all(), nil
}
