// Package observation defines the fixed-schema records that flow between
// pipeline stages, together with the error taxonomy shared by every stage.
package observation

import (
	"time"
)

// Satellite is one flattened cell of a satellite grid product.
type Satellite struct {
	Lat     float64
	Lon     float64
	Density float64

	// QualityFlag is nil when the product carries no quality array.
	QualityFlag *float64

	// ObservedAt is the scan time of the product, nil if the product has none.
	ObservedAt *time.Time
}

// Ground is a point reading from a ground sensor network.
type Ground struct {
	Lat           float64
	Lon           float64
	Value         float64
	Unit          string
	LocationName  string
	ParameterName string
	MeasuredAt    *time.Time
}

// Weather is a current-conditions reading for one sampled grid point.
type Weather struct {
	Lat           float64
	Lon           float64
	Temperature   float64 // Celsius
	WindSpeed     float64 // m/s
	WindDirection float64 // degrees
	Humidity      float64 // percent
	QueriedAt     time.Time
}

// Aligned is one row of the master table: a satellite cell, the weather at its
// rounded grid key, and the nearest ground reading.
//
// Optional fields are nil when the corresponding join found nothing.
type Aligned struct {
	Datetime *time.Time
	Lat      float64
	Lon      float64
	Density  *float64

	Temperature   *float64
	WindSpeed     *float64
	WindDirection *float64

	NearestGroundValue *float64
	DistanceKm         *float64
}

// Features returns the four model predictors in training order, or false if
// any of them is missing.
func (a Aligned) Features() ([4]float64, bool) {
	if a.Density == nil || a.Temperature == nil || a.WindSpeed == nil || a.WindDirection == nil {
		return [4]float64{}, false
	}
	return [4]float64{*a.Density, *a.Temperature, *a.WindSpeed, *a.WindDirection}, true
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// ValidCoordinates reports whether lat/lon lie inside the geographic range.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
