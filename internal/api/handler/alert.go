package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/auracast/auracast/internal/api/models"
	"github.com/auracast/auracast/internal/api/response"
	"github.com/auracast/auracast/internal/aqi"
)

// DefaultAlertThreshold is the AQI at or above which an alert is triggered
// when the caller does not supply one.
const DefaultAlertThreshold = 101

// AlertHandler classifies AQI index values for alerts.
type AlertHandler struct {
	defaultThreshold float64
}

// NewAlertHandler creates an AlertHandler. A non-positive threshold uses
// DefaultAlertThreshold.
func NewAlertHandler(defaultThreshold float64) *AlertHandler {
	if defaultThreshold <= 0 {
		defaultThreshold = DefaultAlertThreshold
	}
	return &AlertHandler{defaultThreshold: defaultThreshold}
}

// Alert handles GET /api/alert?aqi=<value>&threshold=<value>.
func (h *AlertHandler) Alert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var fieldErrors []models.FieldError

	value, msg := parseIndex(q.Get("aqi"))
	if msg != "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "aqi", Message: msg})
	}

	threshold := h.defaultThreshold
	if raw := q.Get("threshold"); raw != "" {
		t, msg := parseIndex(raw)
		if msg != "" {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "threshold", Message: msg})
		}
		threshold = t
	}

	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid alert query", fieldErrors)
		return
	}

	alert := aqi.ClassifyIndex(value)
	response.JSON(w, r, http.StatusOK, models.AlertResponse{
		AQIValue:          value,
		AQIStatus:         alert.Status,
		AQIColor:          alert.Color,
		AlertTitle:        alert.Title,
		RecommendedAction: alert.Action,
		ThresholdChecked:  threshold,
		Triggered:         value >= threshold,
	})
}

// parseIndex parses a non-negative finite AQI value, returning a message on failure.
func parseIndex(raw string) (float64, string) {
	if raw == "" {
		return 0, "required"
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "must be a number"
	}
	if v < 0 {
		return 0, "must not be negative"
	}
	return v, ""
}
