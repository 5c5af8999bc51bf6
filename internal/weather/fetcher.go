package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/observation"
	"github.com/auracast/auracast/internal/spatial"
)

// DefaultRequestDelay is the pause between consecutive provider calls.
const DefaultRequestDelay = time.Second

// FetcherConfig holds configuration for a Fetcher.
type FetcherConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// Clock paces requests and stamps readings. Nil uses the real clock.
	Clock clockwork.Clock

	// RequestDelay is the fixed pause between requests. Zero disables pacing.
	RequestDelay time.Duration
}

// Fetcher queries a provider point by point. A failed point is logged and
// skipped; the batch always runs to the end unless ctx is cancelled.
type Fetcher struct {
	provider Provider
	logger   zerolog.Logger
	clock    clockwork.Clock
	delay    time.Duration
}

// Result is the outcome of a batch fetch.
type Result struct {
	Readings []observation.Weather
	Failed   int
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Fetcher{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		clock:    clock,
		delay:    cfg.RequestDelay,
	}
}

// Fetch requests current conditions for every point in order, waiting the
// configured delay between requests. Readings carry the query coordinates.
func (f *Fetcher) Fetch(ctx context.Context, points []spatial.Point) (Result, error) {
	var res Result

	for i, p := range points {
		if i > 0 && f.delay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-f.clock.After(f.delay):
			}
		}

		c, err := f.provider.CurrentConditions(ctx, p.Lat, p.Lon)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.Failed++
			f.logger.Warn().
				Err(fmt.Errorf("%w: %w", observation.ErrUpstreamFetch, err)).
				Str("provider", f.provider.Name()).
				Float64("lat", p.Lat).
				Float64("lon", p.Lon).
				Msg("weather fetch failed, skipping point")
			continue
		}

		res.Readings = append(res.Readings, observation.Weather{
			Lat:           p.Lat,
			Lon:           p.Lon,
			Temperature:   c.Temperature,
			WindSpeed:     c.WindSpeed,
			WindDirection: c.WindDirection,
			Humidity:      c.Humidity,
			QueriedAt:     f.clock.Now().UTC(),
		})
	}

	f.logger.Info().
		Str("provider", f.provider.Name()).
		Int("points", len(points)).
		Int("succeeded", len(res.Readings)).
		Int("failed", res.Failed).
		Msg("weather fetch complete")

	return res, nil
}
