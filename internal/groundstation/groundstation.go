// Package groundstation fetches recent point readings from a ground sensor
// network around a configured location.
package groundstation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/observation"
)

// Query selects readings within RadiusMeters of a centre point.
type Query struct {
	Lat          float64
	Lon          float64
	RadiusMeters int
	ParameterID  int
	Limit        int
}

// DefaultQuery is PM2.5 within 25 km of central Delhi.
func DefaultQuery() Query {
	return Query{
		Lat:          28.7041,
		Lon:          77.1025,
		RadiusMeters: 25000,
		ParameterID:  2,
		Limit:        1000,
	}
}

// Validate checks the query ranges.
func (q Query) Validate() error {
	if !observation.ValidCoordinates(q.Lat, q.Lon) {
		return fmt.Errorf("invalid query centre (%v, %v)", q.Lat, q.Lon)
	}
	if q.RadiusMeters <= 0 {
		return errors.New("radius must be positive")
	}
	if q.Limit <= 0 {
		return errors.New("limit must be positive")
	}
	return nil
}

// Provider is a ground sensor network.
type Provider interface {
	Name() string

	// FetchLatest returns the latest reading of every matching sensor and the
	// number of upstream records skipped for missing coordinates or values.
	FetchLatest(ctx context.Context, q Query) ([]observation.Ground, int, error)
}

// Result is the outcome of one fetch. An upstream failure leaves Readings
// empty and is reported in Err rather than returned.
type Result struct {
	Readings []observation.Ground
	Skipped  int
	Err      error
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Provider Provider
	Logger   zerolog.Logger
}

// Fetcher retrieves ground readings and absorbs upstream failures.
type Fetcher struct {
	provider Provider
	logger   zerolog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	return &Fetcher{
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Fetch queries the provider. An invalid query or a cancelled context is
// returned as an error; any upstream failure yields an empty Result with Err
// wrapping observation.ErrUpstreamFetch.
func (f *Fetcher) Fetch(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	readings, skipped, err := f.provider.FetchLatest(ctx, q)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		wrapped := fmt.Errorf("%w: %s: %w", observation.ErrUpstreamFetch, f.provider.Name(), err)
		f.logger.Warn().
			Err(err).
			Str("provider", f.provider.Name()).
			Msg("ground station fetch failed, continuing with empty set")
		return Result{Err: wrapped}, nil
	}

	if len(readings) == 0 {
		f.logger.Warn().
			Str("provider", f.provider.Name()).
			Float64("lat", q.Lat).
			Float64("lon", q.Lon).
			Int("radius_m", q.RadiusMeters).
			Msg("no ground readings found, try a larger radius")
	} else {
		f.logger.Info().
			Str("provider", f.provider.Name()).
			Int("readings", len(readings)).
			Int("skipped", skipped).
			Msg("ground readings fetched")
	}

	return Result{Readings: readings, Skipped: skipped}, nil
}
