package spatial_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auracast/auracast/internal/spatial"
)

// referenceKm is an independent haversine implementation used to check the tree.
func referenceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Pow(math.Sin(dLon/2), 2)
	return 2 * math.Asin(math.Sqrt(a)) * 6371
}

func TestHaversineKm(t *testing.T) {
	london := spatial.Point{Lat: 51.5074, Lon: -0.1278}
	paris := spatial.Point{Lat: 48.8566, Lon: 2.3522}

	assert.InDelta(t, 343.556, spatial.HaversineKm(london, paris), 0.01)
	assert.InDelta(t, 0, spatial.HaversineKm(london, london), 1e-12)
	assert.InDelta(t, spatial.HaversineKm(paris, london), spatial.HaversineKm(london, paris), 1e-9)
}

func TestBallTree_Empty(t *testing.T) {
	tree := spatial.NewBallTree(nil, 0)

	_, ok := tree.Nearest(spatial.Point{Lat: 10, Lon: 10})
	assert.False(t, ok)
	assert.Equal(t, 0, tree.Len())
}

func TestBallTree_SingleStationScenario(t *testing.T) {
	station := spatial.Point{Lat: 40.80, Lon: -73.95}
	tree := spatial.NewBallTree([]spatial.Point{station}, 0)

	queries := []spatial.Point{
		{Lat: 40.78, Lon: -73.96},
		{Lat: 40.71, Lon: -74.01},
	}
	want := []float64{2.3779, 11.2113}

	for i, q := range queries {
		nb, ok := tree.Nearest(q)
		require.True(t, ok)
		assert.Equal(t, 0, nb.Index)
		assert.InDelta(t, referenceKm(q.Lat, q.Lon, station.Lat, station.Lon), nb.DistanceKm, 1e-9)
		assert.InDelta(t, want[i], nb.DistanceKm, 1e-3)
	}
}

func TestBallTree_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	randomPoint := func() spatial.Point {
		return spatial.Point{Lat: rng.Float64()*180 - 90, Lon: rng.Float64()*360 - 180}
	}

	ground := make([]spatial.Point, 500)
	for i := range ground {
		ground[i] = randomPoint()
	}

	for _, leafSize := range []int{1, 5, spatial.DefaultLeafSize} {
		tree := spatial.NewBallTree(ground, leafSize)

		for q := 0; q < 200; q++ {
			query := randomPoint()

			best := math.Inf(1)
			for _, g := range ground {
				best = math.Min(best, referenceKm(query.Lat, query.Lon, g.Lat, g.Lon))
			}

			nb, ok := tree.Nearest(query)
			require.True(t, ok)
			assert.InDelta(t, best, nb.DistanceKm, 1e-6, "leaf size %d", leafSize)
		}
	}
}

func TestBallTree_TiesResolveToLowestIndex(t *testing.T) {
	// Two stations mirrored across the query's meridian are equidistant.
	points := []spatial.Point{
		{Lat: 0, Lon: 1},
		{Lat: 0, Lon: -1},
		{Lat: 0, Lon: 1},
	}
	tree := spatial.NewBallTree(points, 1)

	nb, ok := tree.Nearest(spatial.Point{Lat: 0, Lon: 0})
	require.True(t, ok)
	assert.Equal(t, 0, nb.Index)
}

func TestBallTree_Deterministic(t *testing.T) {
	points := []spatial.Point{
		{Lat: 40.80, Lon: -73.95},
		{Lat: 40.70, Lon: -74.00},
		{Lat: 40.75, Lon: -73.98},
		{Lat: 40.65, Lon: -73.90},
	}
	q := spatial.Point{Lat: 40.72, Lon: -73.99}

	first, _ := spatial.NewBallTree(points, 1).Nearest(q)
	second, _ := spatial.NewBallTree(points, 1).Nearest(q)
	assert.Equal(t, first, second)
}
