// Package weather collects current meteorological conditions for a sample of
// satellite grid points.
package weather

import (
	"context"
	"fmt"

	"github.com/auracast/auracast/internal/observation"
	"github.com/auracast/auracast/internal/spatial"
)

// Conditions is one current-weather reading from a provider.
type Conditions struct {
	Temperature   float64 // Celsius
	WindSpeed     float64 // m/s
	WindDirection float64 // degrees
	Humidity      float64 // percent
}

// Provider defines the interface for current-weather providers.
type Provider interface {
	Name() string
	CurrentConditions(ctx context.Context, lat, lon float64) (Conditions, error)
}

// DefaultSampleRate keeps every 5000th satellite cell.
const DefaultSampleRate = 5000

// SamplePoints returns the coordinates of every rate-th satellite cell,
// starting with the first, with repeated coordinates removed. Order of first
// appearance is preserved.
func SamplePoints(cells []observation.Satellite, rate int) ([]spatial.Point, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", rate)
	}

	seen := make(map[spatial.Point]struct{})
	var out []spatial.Point
	for i := 0; i < len(cells); i += rate {
		p := spatial.Point{Lat: cells[i].Lat, Lon: cells[i].Lon}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
