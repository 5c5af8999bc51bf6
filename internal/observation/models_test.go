package observation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/auracast/auracast/internal/observation"
)

func TestValidCoordinates(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lon  float64
		want bool
	}{
		{"origin", 0, 0, true},
		{"new york", 40.78, -73.96, true},
		{"poles and antimeridian", -90, 180, true},
		{"latitude too high", 90.01, 0, false},
		{"longitude too low", 0, -180.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, observation.ValidCoordinates(tt.lat, tt.lon))
		})
	}
}

func TestAligned_Features(t *testing.T) {
	row := observation.Aligned{
		Density:       observation.Float(15.5),
		Temperature:   observation.Float(21),
		WindSpeed:     observation.Float(3.2),
		WindDirection: observation.Float(180),
	}

	f, ok := row.Features()
	assert.True(t, ok)
	assert.Equal(t, [4]float64{15.5, 21, 3.2, 180}, f)

	row.WindSpeed = nil
	_, ok = row.Features()
	assert.False(t, ok)
}

func TestMissingFile(t *testing.T) {
	err := observation.MissingFile("data/tempo.json")

	assert.True(t, errors.Is(err, observation.ErrFileNotFound))
	assert.Contains(t, err.Error(), "data/tempo.json")
}
