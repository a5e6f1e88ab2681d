// SPDX-License-Identifier: AGPL-3.0-or-later

package tracklookup

import "sort"

// MemoryLookuper is a trivial in-memory Lookuper, useful for tests and for
// wiring a small catalog without an external store.
type MemoryLookuper struct {
	Records map[TrackRef]TrackRecord
}

// NewMemoryLookuper builds an empty MemoryLookuper.
func NewMemoryLookuper() *MemoryLookuper {
	return &MemoryLookuper{Records: make(map[TrackRef]TrackRecord)}
}

// Add registers or replaces a track record.
func (m *MemoryLookuper) Add(rec TrackRecord) {
	m.Records[rec.ID] = rec
}

// Lookup returns the subset of trackIDs present in the catalog.
func (m *MemoryLookuper) Lookup(trackIDs []TrackRef) (map[TrackRef]TrackRecord, error) {
	out := make(map[TrackRef]TrackRecord, len(trackIDs))
	for _, id := range trackIDs {
		if rec, ok := m.Records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

// TracksByArtist returns every track whose ArtistID matches, sorted by ID
// for determinism.
func (m *MemoryLookuper) TracksByArtist(artistID string) ([]TrackRef, error) {
	var out []TrackRef
	for id, rec := range m.Records {
		if rec.ArtistID == artistID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// PopularPool returns up to limit tracks ordered by descending popularity,
// ties broken by ascending ID.
func (m *MemoryLookuper) PopularPool(limit int) ([]TrackRef, error) {
	all := make([]TrackRecord, 0, len(m.Records))
	for _, rec := range m.Records {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Popularity != all[j].Popularity {
			return all[i].Popularity > all[j].Popularity
		}
		return all[i].ID < all[j].ID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]TrackRef, len(all))
	for i, rec := range all {
		out[i] = rec.ID
	}
	return out, nil
}
