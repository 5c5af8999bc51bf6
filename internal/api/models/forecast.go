package models

import (
	"encoding/json"

	"github.com/auracast/auracast/internal/aqi"
)

// StatusSuccess is the status field of successful data responses.
const StatusSuccess = "success"

// ForecastResponse is the response for GET /api/forecast.
type ForecastResponse struct {
	Status          string    `json:"status"`
	PredictedPM25   float64   `json:"predicted_pm25"`
	AQILevel        aqi.Level `json:"aqi_level"`
	AQIColor        aqi.Color `json:"aqi_color"`
	LocationContext string    `json:"location_context"`
}

// PredictRequest is the request body for POST /api/predict. Fields are
// pointers so a missing field can be told apart from zero.
type PredictRequest struct {
	NO2ColumnDensity *float64 `json:"no2_column_density"`
	TemperatureC     *float64 `json:"temperature_c"`
	WindSpeedMS      *float64 `json:"wind_speed_m_s"`
	WindDirectionDeg *float64 `json:"wind_direction_deg"`
}

// PredictResponse is the response for POST /api/predict.
type PredictResponse struct {
	PredictedValue float64   `json:"predicted_value"`
	AQILevel       aqi.Level `json:"aqi_level"`
	AQIColor       aqi.Color `json:"aqi_color"`
}

// ValidationRow is one aligned row shown for transparency.
type ValidationRow struct {
	Timestamp    *Timestamp `json:"timestamp"`
	SatelliteNO2 *float64   `json:"satellite_no2"`
	GroundPM25   *float64   `json:"ground_pm25"`
	DistanceKm   *float64   `json:"distance_km"`
}

// ValidationResponse is the response for GET /api/validation.
type ValidationResponse struct {
	Status               string          `json:"status"`
	RecentValidationData []ValidationRow `json:"recent_validation_data"`
}

// AlertResponse is the response for GET /api/alert.
type AlertResponse struct {
	AQIValue          float64   `json:"aqi_value"`
	AQIStatus         aqi.Level `json:"aqi_status"`
	AQIColor          aqi.Color `json:"aqi_color"`
	AlertTitle        string    `json:"alert_title"`
	RecommendedAction string    `json:"recommended_action"`
	ThresholdChecked  float64   `json:"threshold_checked"`
	Triggered         bool      `json:"triggered"`
}

// MapPoint is one predicted grid point. It marshals as the compact array
// [lat, lon, predicted_pm25, level, color] expected by map clients.
type MapPoint struct {
	Lat           float64
	Lon           float64
	PredictedPM25 float64
	Level         aqi.Level
	Color         aqi.Color
}

// MarshalJSON implements json.Marshaler for MapPoint.
func (p MapPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Lat, p.Lon, p.PredictedPM25, p.Level, p.Color})
}

// ComparisonResponse is the response for GET /api/comparison.
type ComparisonResponse struct {
	SatelliteValue    float64 `json:"satellite_value"`
	GroundValue       float64 `json:"ground_value"`
	DifferencePercent string  `json:"difference_percent"`
	Trend             string  `json:"trend"`
	ValidationMessage string  `json:"validation_message"`
}
