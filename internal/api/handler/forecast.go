package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/auracast/auracast/internal/api/models"
	"github.com/auracast/auracast/internal/api/response"
	"github.com/auracast/auracast/internal/aqi"
	"github.com/auracast/auracast/internal/observation"
	"github.com/auracast/auracast/internal/serving"
)

// maxPredictBody bounds the POST /api/predict request body.
const maxPredictBody = 1 << 16

const (
	// DefaultValidationRows is how many trailing rows /api/validation returns.
	DefaultValidationRows = 10

	// DefaultMapPoints is how many trailing predictable rows /api/map returns.
	DefaultMapPoints = 100
)

// ForecastHandler serves model predictions and the aligned data behind them.
type ForecastHandler struct {
	serving        *serving.Context
	validationRows int
	mapPoints      int
}

// ForecastHandlerConfig configures a ForecastHandler.
type ForecastHandlerConfig struct {
	Serving        *serving.Context
	ValidationRows int
	MapPoints      int
}

// NewForecastHandler creates a ForecastHandler.
func NewForecastHandler(cfg ForecastHandlerConfig) *ForecastHandler {
	h := &ForecastHandler{
		serving:        cfg.Serving,
		validationRows: cfg.ValidationRows,
		mapPoints:      cfg.MapPoints,
	}
	if h.serving == nil {
		h.serving = serving.New(nil, nil, time.Time{})
	}
	if h.validationRows <= 0 {
		h.validationRows = DefaultValidationRows
	}
	if h.mapPoints <= 0 {
		h.mapPoints = DefaultMapPoints
	}
	return h
}

// Forecast handles GET /api/forecast - prediction from the last aligned row.
func (h *ForecastHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	last, err := h.serving.LastRow()
	if err != nil {
		writeServingError(w, r, err)
		return
	}

	predicted, err := h.serving.PredictRow(last)
	if err != nil {
		writeServingError(w, r, err)
		return
	}

	category := aqi.ClassifyPM25(predicted)
	response.JSON(w, r, http.StatusOK, models.ForecastResponse{
		Status:          models.StatusSuccess,
		PredictedPM25:   models.Round(predicted, 2),
		AQILevel:        category.Level,
		AQIColor:        category.Color,
		LocationContext: fmt.Sprintf("Prediction based on the model's features from the last data record (%.4f, %.4f).", last.Lat, last.Lon),
	})
}

// Predict handles POST /api/predict - prediction for caller-supplied features.
func (h *ForecastHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var input models.PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPredictBody))
	if err := dec.Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrors []models.FieldError
	field := func(name string, v *float64) float64 {
		if v == nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: name, Message: "required", Code: "REQUIRED"})
			return 0
		}
		return *v
	}
	x := [4]float64{
		field("no2_column_density", input.NO2ColumnDensity),
		field("temperature_c", input.TemperatureC),
		field("wind_speed_m_s", input.WindSpeedMS),
		field("wind_direction_deg", input.WindDirectionDeg),
	}
	if input.WindSpeedMS != nil && *input.WindSpeedMS < 0 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "wind_speed_m_s", Message: "must not be negative", Code: "OUT_OF_RANGE"})
	}
	if input.WindDirectionDeg != nil && (*input.WindDirectionDeg < 0 || *input.WindDirectionDeg > 360) {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "wind_direction_deg", Message: "must be between 0 and 360", Code: "OUT_OF_RANGE"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid prediction input", fieldErrors)
		return
	}

	predicted, err := h.serving.Predict(x)
	if err != nil {
		writeServingError(w, r, err)
		return
	}

	category := aqi.ClassifyPM25(predicted)
	response.JSON(w, r, http.StatusOK, models.PredictResponse{
		PredictedValue: models.Round(predicted, 2),
		AQILevel:       category.Level,
		AQIColor:       category.Color,
	})
}

// Validation handles GET /api/validation - the most recent aligned rows.
func (h *ForecastHandler) Validation(w http.ResponseWriter, r *http.Request) {
	rows := h.serving.LastRows(h.validationRows)
	if len(rows) == 0 {
		writeServingError(w, r, serving.ErrNoData)
		return
	}

	out := make([]models.ValidationRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.ValidationRow{
			Timestamp:    models.TimestampPtr(row.Datetime),
			SatelliteNO2: models.RoundPtr(row.Density, 4),
			GroundPM25:   models.RoundPtr(row.NearestGroundValue, 2),
			DistanceKm:   models.RoundPtr(row.DistanceKm, 1),
		})
	}

	response.JSON(w, r, http.StatusOK, models.ValidationResponse{
		Status:               models.StatusSuccess,
		RecentValidationData: out,
	})
}

// Map handles GET /api/map - predictions for the most recent complete rows.
func (h *ForecastHandler) Map(w http.ResponseWriter, r *http.Request) {
	if _, err := h.serving.Predict([4]float64{}); err != nil {
		writeServingError(w, r, err)
		return
	}

	rows := h.serving.LastMatching(h.mapPoints, serving.HasFeatures)
	points := make([]models.MapPoint, 0, len(rows))
	for _, row := range rows {
		predicted, err := h.serving.PredictRow(row)
		if err != nil {
			continue
		}
		category := aqi.ClassifyPM25(predicted)
		points = append(points, models.MapPoint{
			Lat:           row.Lat,
			Lon:           row.Lon,
			PredictedPM25: models.Round(predicted, 2),
			Level:         category.Level,
			Color:         category.Color,
		})
	}

	response.JSON(w, r, http.StatusOK, points)
}

// Comparison handles GET /api/comparison - satellite against the nearest
// ground reading for the most recent row that has both.
func (h *ForecastHandler) Comparison(w http.ResponseWriter, r *http.Request) {
	if _, err := h.serving.LastRow(); err != nil {
		writeServingError(w, r, err)
		return
	}

	rows := h.serving.LastMatching(1, serving.HasGroundComparison)
	if len(rows) == 0 {
		response.Unprocessable(w, r, "no aligned row has both a satellite and a ground value")
		return
	}

	response.JSON(w, r, http.StatusOK, compare(rows[0]))
}

func compare(row observation.Aligned) models.ComparisonResponse {
	satellite := *row.Density
	ground := *row.NearestGroundValue
	diff := satellite - ground

	var percent float64
	if ground != 0 {
		percent = math.Abs(diff) / ground * 100
	}
	trend := "lower"
	if diff > 0 {
		trend = "higher"
	}

	return models.ComparisonResponse{
		SatelliteValue:    satellite,
		GroundValue:       ground,
		DifferencePercent: fmt.Sprintf("%.1f%%", percent),
		Trend:             trend,
		ValidationMessage: fmt.Sprintf("The satellite reading is %.1f%% %s than the closest ground sensor.", percent, trend),
	}
}

// writeServingError maps serving errors onto problem responses.
func writeServingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, serving.ErrModelUnavailable):
		response.ServiceUnavailable(w, r, "model not loaded; run the training pipeline and restart the API")
	case errors.Is(err, serving.ErrNoData):
		response.ServiceUnavailable(w, r, "aligned data not loaded; run the alignment pipeline and restart the API")
	case errors.Is(err, serving.ErrIncompleteFeatures):
		response.Unprocessable(w, r, "the latest aligned row is missing one or more model features")
	default:
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
