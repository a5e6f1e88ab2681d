// SPDX-License-Identifier: AGPL-3.0-or-later

package recommend

import (
	"fmt"

	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
)

// Sentinel error kinds per spec §7. Strategies degrade around most of
// these rather than propagating them to the caller; only NoValidSeeds,
// UnknownStrategy, UnknownVariant, Cancelled, and NotFound (single-track
// operations) ever reach the Engine Facade's return value.
var (
	// ErrNoValidSeeds means every seed in the request failed to resolve.
	ErrNoValidSeeds = fmt.Errorf("recommend: no valid seeds")

	// ErrUnknownStrategy means the request named a strategy the engine does not run.
	ErrUnknownStrategy = fmt.Errorf("recommend: unknown strategy")

	// ErrUnknownVariant means switch_variant or a request named a variant that is not registered.
	ErrUnknownVariant = fmt.Errorf("recommend: unknown variant")

	// ErrNotFound means a single-track operation named a track_id outside the active index.
	ErrNotFound = fmt.Errorf("recommend: track not found")

	// ErrNoLyrics means a lyrics operation targeted a track without stored lyrics.
	ErrNoLyrics = fmt.Errorf("recommend: no lyrics for track")

	// ErrCancelled means the request's context was cancelled before completion.
	ErrCancelled = fmt.Errorf("recommend: request cancelled")
)

// ArtifactError reports that a variant's files were missing or failed
// validation at load or switch time (spec §4.1, §7). The loader recovers
// locally: the named variant is disabled and the rest proceed. Aliased
// from the artifacts package, which is where loading actually happens.
type ArtifactError = artifacts.ArtifactError

// IndexError reports an internal neighbor-query failure (spec §7). The
// caller is expected to fall back to the next-best strategy.
type IndexError struct {
	Op     string
	Reason string
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index error: op=%s: %s", e.Op, e.Reason)
}
