// SPDX-License-Identifier: AGPL-3.0-or-later

package tracklookup

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/rs/zerolog"

	"github.com/sonora-audio/sonora/internal/metrics"
)

// CircuitBreakerLookuper wraps a Lookuper with a circuit breaker so a
// struggling host catalog (spec §4.6: "the engine never owns this store")
// fails fast instead of piling up slow calls against it. Grounded on this
// codebase's sony/gobreaker-based client wrappers for other external
// collaborators, generalized from one wrapped method to all three.
type CircuitBreakerLookuper struct {
	inner Lookuper
	cb    *gobreaker.CircuitBreaker[any]
}

// CircuitBreakerSettings configures NewCircuitBreakerLookuper's breaker.
type CircuitBreakerSettings struct {
	Name                string
	MaxHalfOpenRequests uint32
	Interval            time.Duration
	Timeout             time.Duration
	MinRequests         uint32
	FailureRatio        float64
}

// DefaultCircuitBreakerSettings mirrors the ratios this codebase's other
// external-API wrappers use: open after 60% failures with at least 10
// requests for statistical significance, recover after 2 minutes.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		Name:                "track-lookup",
		MaxHalfOpenRequests: 3,
		Interval:            time.Minute,
		Timeout:             2 * time.Minute,
		MinRequests:         10,
		FailureRatio:        0.6,
	}
}

// NewCircuitBreakerLookuper wraps inner with a circuit breaker per settings.
func NewCircuitBreakerLookuper(inner Lookuper, settings CircuitBreakerSettings, logger zerolog.Logger) *CircuitBreakerLookuper {
	name := settings.Name
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxHalfOpenRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			trip := ratio >= settings.FailureRatio
			if trip {
				logger.Warn().Str("breaker", name).Float64("failure_ratio", ratio).Msg("opening track lookup circuit breaker")
			}
			return trip
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("track lookup circuit breaker transitioned")
		},
	})

	return &CircuitBreakerLookuper{inner: inner, cb: cb}
}

// ErrCircuitOpen is returned as-is when the breaker rejects a call
// outright instead of reaching the underlying Lookuper.
var ErrCircuitOpen = gobreaker.ErrOpenState

func (c *CircuitBreakerLookuper) Lookup(trackIDs []TrackRef) (map[TrackRef]TrackRecord, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.inner.Lookup(trackIDs)
	})
	c.recordOutcome(err)
	if err != nil {
		return nil, err
	}
	return result.(map[TrackRef]TrackRecord), nil
}

func (c *CircuitBreakerLookuper) TracksByArtist(artistID string) ([]TrackRef, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.inner.TracksByArtist(artistID)
	})
	c.recordOutcome(err)
	if err != nil {
		return nil, err
	}
	return result.([]TrackRef), nil
}

func (c *CircuitBreakerLookuper) PopularPool(limit int) ([]TrackRef, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.inner.PopularPool(limit)
	})
	c.recordOutcome(err)
	if err != nil {
		return nil, err
	}
	return result.([]TrackRef), nil
}

func (c *CircuitBreakerLookuper) recordOutcome(err error) {
	name := c.cb.Name()
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
	}
}
