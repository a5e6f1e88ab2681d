// SPDX-License-Identifier: AGPL-3.0-or-later

package reccache

import (
	"strconv"
	"strings"

	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
)

// FingerprintKey derives the stable cache key from a normalized request
// (spec §4.8): sorted seed_ids, strategy, k, canonical filter spec, and the
// variant ids that answered it. seedIDs must already be sorted (the Engine
// Facade normalizes requests before this is called).
func FingerprintKey(seedIDs []rectypes.TrackRef, strategy rectypes.Strategy, k int, filterCanonical string, variantTag string) string {
	var b strings.Builder
	for i, id := range seedIDs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(id))
	}
	b.WriteByte('|')
	b.WriteString(string(strategy))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(k))
	b.WriteByte('|')
	b.WriteString(filterCanonical)
	b.WriteByte('|')
	b.WriteString(variantTag)
	return b.String()
}
