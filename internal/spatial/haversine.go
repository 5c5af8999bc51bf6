// Package spatial provides great-circle distance helpers and a ball tree for
// nearest-neighbour lookups over latitude/longitude points.
package spatial

import "math"

// EarthRadiusKm is the mean Earth radius used for all distance conversions.
const EarthRadiusKm = 6371.0

// Point is a geographic coordinate in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// HaversineKm returns the great-circle distance between two points in kilometers.
func HaversineKm(a, b Point) float64 {
	return centralAngle(toRadians(a), toRadians(b)) * EarthRadiusKm
}

// radPoint is a coordinate already converted to radians.
type radPoint struct {
	lat float64
	lon float64
}

func toRadians(p Point) radPoint {
	return radPoint{lat: p.Lat * math.Pi / 180, lon: p.Lon * math.Pi / 180}
}

// centralAngle is the haversine angular distance in radians.
func centralAngle(p, q radPoint) float64 {
	dLat := q.lat - p.lat
	dLon := q.lon - p.lon

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(p.lat)*math.Cos(q.lat)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	if a > 1 {
		a = 1
	}
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
