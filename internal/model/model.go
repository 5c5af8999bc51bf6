// Package model fits and serves the linear PM2.5 regression.
package model

import (
	"errors"
	"fmt"
	"time"
)

// FeatureNames lists the predictors in the order Predict expects them.
var FeatureNames = [4]string{
	"NO2_column_density",
	"current_temp_C",
	"current_wind_speed_m_s",
	"current_wind_direction_deg",
}

// TargetName is the column the model is trained to predict.
const TargetName = "nearest_ground_value"

// ErrInvalidModel is returned when a stored artifact cannot be used.
var ErrInvalidModel = errors.New("invalid model artifact")

// Model is a fitted linear model. It is never modified after training;
// retraining produces a new Model.
type Model struct {
	Intercept    float64    `json:"intercept"`
	Coefficients [4]float64 `json:"coefficients"`
	Features     [4]string  `json:"features"`
	TrainedAt    time.Time  `json:"trained_at"`
	TrainingRows int        `json:"training_rows"`
	TrainingMSE  float64    `json:"training_mse"`
}

// Raw returns the unclamped linear prediction.
func (m *Model) Raw(x [4]float64) float64 {
	y := m.Intercept
	for i, c := range m.Coefficients {
		y += c * x[i]
	}
	return y
}

// Predict returns the predicted concentration for x, never below zero.
func (m *Model) Predict(x [4]float64) float64 {
	if y := m.Raw(x); y > 0 {
		return y
	}
	return 0
}

// Validate checks that a decoded artifact matches the expected feature layout.
func (m *Model) Validate() error {
	if m.Features != FeatureNames {
		return fmt.Errorf("%w: features %v, want %v", ErrInvalidModel, m.Features, FeatureNames)
	}
	if m.TrainingRows <= 0 {
		return fmt.Errorf("%w: no training rows recorded", ErrInvalidModel)
	}
	return nil
}
