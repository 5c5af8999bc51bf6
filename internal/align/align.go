// Package align joins satellite cells with weather readings and the nearest
// ground-station reading to build the master training table.
//
// The weather join matches on coordinates rounded to two decimal places; the
// ground join is an exact great-circle nearest-neighbour search. The two are
// deliberately different.
package align

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/observation"
	"github.com/auracast/auracast/internal/spatial"
)

// KeyPrecision is the number of decimal places kept in the weather join key.
const KeyPrecision = 2

// Config configures an Aligner.
type Config struct {
	Logger zerolog.Logger

	// LeafSize of the ground-station ball tree. Zero uses spatial.DefaultLeafSize.
	LeafSize int
}

// Stats summarises one alignment run.
type Stats struct {
	SatelliteIn      int
	SatelliteDropped int
	WeatherIn        int
	WeatherDropped   int
	GroundIn         int
	GroundDropped    int
	WeatherMatched   int
	Rows             int

	// EmptyReference is set when no ground readings were available and every
	// row carries null ground fields.
	EmptyReference bool
}

// Aligner runs the three alignment steps.
type Aligner struct {
	logger   zerolog.Logger
	leafSize int
}

// New creates an Aligner.
func New(cfg Config) *Aligner {
	return &Aligner{
		logger:   cfg.Logger,
		leafSize: cfg.LeafSize,
	}
}

// Align cleans its inputs, joins weather by rounded key, attaches the nearest
// ground reading and projects the master row layout. Inputs are not modified.
// An empty ground set is not an error: ground fields are null and
// Stats.EmptyReference is set.
func (a *Aligner) Align(sats []observation.Satellite, wx []observation.Weather, ground []observation.Ground) ([]observation.Aligned, Stats) {
	stats := Stats{
		SatelliteIn: len(sats),
		WeatherIn:   len(wx),
		GroundIn:    len(ground),
	}

	sats = cleanSatellite(sats)
	wx = cleanWeather(wx)
	ground = cleanGround(ground)
	stats.SatelliteDropped = stats.SatelliteIn - len(sats)
	stats.WeatherDropped = stats.WeatherIn - len(wx)
	stats.GroundDropped = stats.GroundIn - len(ground)

	joined := JoinWeather(sats, wx)
	for _, j := range joined {
		if j.Weather != nil {
			stats.WeatherMatched++
		}
	}

	rows := AttachNearestGround(joined, ground, a.leafSize)
	stats.Rows = len(rows)

	if len(ground) == 0 {
		stats.EmptyReference = true
		a.logger.Warn().
			Err(observation.ErrEmptyReferenceSet).
			Int("rows", len(rows)).
			Msg("no ground readings, nearest ground fields left null")
	}

	a.logger.Info().
		Int("satellite_in", stats.SatelliteIn).
		Int("satellite_dropped", stats.SatelliteDropped).
		Int("weather_in", stats.WeatherIn).
		Int("weather_dropped", stats.WeatherDropped).
		Int("ground_in", stats.GroundIn).
		Int("ground_dropped", stats.GroundDropped).
		Int("weather_matched", stats.WeatherMatched).
		Int("rows", stats.Rows).
		Msg("alignment complete")

	return rows, stats
}

// Joined is a satellite cell paired with the weather reading sharing its
// rounded key, if any.
type Joined struct {
	Satellite observation.Satellite
	Weather   *observation.Weather
}

type gridKey struct {
	lat, lon int64
}

// keyOf rounds half to even on the scaled coordinate.
func keyOf(lat, lon float64) gridKey {
	scale := math.Pow10(KeyPrecision)
	return gridKey{
		lat: int64(math.RoundToEven(lat * scale)),
		lon: int64(math.RoundToEven(lon * scale)),
	}
}

// JoinWeather left-joins weather onto satellite cells by rounded coordinate
// key. Every cell appears at least once; a cell whose key matches several
// weather readings appears once per match, in weather order.
func JoinWeather(sats []observation.Satellite, wx []observation.Weather) []Joined {
	byKey := make(map[gridKey][]int, len(wx))
	for i, w := range wx {
		k := keyOf(w.Lat, w.Lon)
		byKey[k] = append(byKey[k], i)
	}

	out := make([]Joined, 0, len(sats))
	for _, s := range sats {
		matches := byKey[keyOf(s.Lat, s.Lon)]
		if len(matches) == 0 {
			out = append(out, Joined{Satellite: s})
			continue
		}
		for _, i := range matches {
			w := wx[i]
			out = append(out, Joined{Satellite: s, Weather: &w})
		}
	}
	return out
}

// AttachNearestGround finds the closest ground reading for every joined row
// and projects the result onto the master row layout. With no ground readings
// the ground fields are nil.
func AttachNearestGround(joined []Joined, ground []observation.Ground, leafSize int) []observation.Aligned {
	out := make([]observation.Aligned, len(joined))

	var tree *spatial.BallTree
	if len(ground) > 0 {
		pts := make([]spatial.Point, len(ground))
		for i, g := range ground {
			pts[i] = spatial.Point{Lat: g.Lat, Lon: g.Lon}
		}
		tree = spatial.NewBallTree(pts, leafSize)
	}

	for i, j := range joined {
		var nearest *observation.Ground
		row := observation.Aligned{
			Lat:     j.Satellite.Lat,
			Lon:     j.Satellite.Lon,
			Density: observation.Float(j.Satellite.Density),
		}
		if w := j.Weather; w != nil {
			row.Temperature = observation.Float(w.Temperature)
			row.WindSpeed = observation.Float(w.WindSpeed)
			row.WindDirection = observation.Float(w.WindDirection)
		}
		if tree != nil {
			if n, ok := tree.Nearest(spatial.Point{Lat: j.Satellite.Lat, Lon: j.Satellite.Lon}); ok {
				nearest = &ground[n.Index]
				row.NearestGroundValue = observation.Float(nearest.Value)
				row.DistanceKm = observation.Float(n.DistanceKm)
			}
		}
		row.Datetime = rowTime(j.Satellite, nearest)
		out[i] = row
	}
	return out
}

func cleanSatellite(in []observation.Satellite) []observation.Satellite {
	out := make([]observation.Satellite, 0, len(in))
	for _, s := range in {
		if finite(s.Lat, s.Lon, s.Density) && observation.ValidCoordinates(s.Lat, s.Lon) {
			out = append(out, s)
		}
	}
	return out
}

func cleanWeather(in []observation.Weather) []observation.Weather {
	out := make([]observation.Weather, 0, len(in))
	for _, w := range in {
		if finite(w.Lat, w.Lon, w.Temperature, w.WindSpeed, w.WindDirection, w.Humidity) &&
			observation.ValidCoordinates(w.Lat, w.Lon) {
			out = append(out, w)
		}
	}
	return out
}

func cleanGround(in []observation.Ground) []observation.Ground {
	out := make([]observation.Ground, 0, len(in))
	for _, g := range in {
		if finite(g.Lat, g.Lon, g.Value) && observation.ValidCoordinates(g.Lat, g.Lon) {
			out = append(out, g)
		}
	}
	return out
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// rowTime is the satellite scan time when known, else the ground reading's
// measurement time.
func rowTime(s observation.Satellite, g *observation.Ground) *time.Time {
	if s.ObservedAt != nil {
		return s.ObservedAt
	}
	if g != nil {
		return g.MeasuredAt
	}
	return nil
}
