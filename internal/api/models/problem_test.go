package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auracast/auracast/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeValidation, "Validation error", http.StatusBadRequest, "req_test123").
		WithDetail("wind_direction_deg is required").
		WithInstance("/api/predict").
		WithErrors([]models.FieldError{{Field: "wind_direction_deg", Message: "required", Code: "REQUIRED"}})

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Equal(t, "wind_direction_deg is required", p.Detail)
	assert.Equal(t, "/api/predict", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "REQUIRED", p.Errors[0].Code)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "temperature_c", Message: "required"},
	})
	p.Instance = "/api/predict"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, *p, result)
}

func TestProblem_Constructors(t *testing.T) {
	tests := []struct {
		name   string
		build  func(traceID, detail string) *models.Problem
		typ    string
		title  string
		status int
	}{
		{"not found", models.NewNotFound, models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"unsupported media type", models.NewUnsupportedMediaType, models.ProblemTypeUnsupportedMediaType, "Unsupported media type", http.StatusUnsupportedMediaType},
		{"unprocessable", models.NewUnprocessable, models.ProblemTypeUnprocessable, "Unprocessable entity", http.StatusUnprocessableEntity},
		{"too many requests", models.NewTooManyRequests, models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError, models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable, models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.build("req_123", "detail text")
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.title, p.Title)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, "detail text", p.Detail)
			assert.Equal(t, "req_123", p.TraceID)
		})
	}
}
