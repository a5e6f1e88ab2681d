// SPDX-License-Identifier: AGPL-3.0-or-later

package tracklookup

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadCatalogFile reads a static JSON snapshot of the catalog (an array of
// TrackRecord) into a MemoryLookuper. This is wiring for the cmd/server
// demo binary only: the catalog store itself is an external collaborator
// the engine never owns (spec §1), and schema migration / CSV ingestion
// into that store is an explicit non-goal. A JSON snapshot is the
// simplest thing that can stand in for "the host's TrackLookup" without
// pulling in a database dependency the core has no use for.
func LoadCatalogFile(path string) (*MemoryLookuper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}
	var records []TrackRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	m := NewMemoryLookuper()
	for _, rec := range records {
		m.Add(rec)
	}
	return m, nil
}
