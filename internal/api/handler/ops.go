// Package handler provides HTTP handlers for the AuraCast API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/auracast/auracast/internal/api/models"
	"github.com/auracast/auracast/internal/api/response"
	"github.com/auracast/auracast/internal/resilience"
	"github.com/auracast/auracast/internal/serving"
)

// Pinger checks a dependency, such as a database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	serving   *serving.Context
	providers *resilience.Registry
	database  Pinger
}

// OpsHandlerConfig configures an OpsHandler. Providers and Database are optional.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	Serving   *serving.Context
	Providers *resilience.Registry
	Database  Pinger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	h := &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		serving:   cfg.Serving,
		providers: cfg.Providers,
		database:  cfg.Database,
	}
	if h.serving == nil {
		h.serving = serving.New(nil, nil, time.Time{})
	}
	return h
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The API is ready once the model
// and the master table are both loaded.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	s := h.serving.Status()
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"modelLoaded": s.ModelLoaded,
			"rows":        s.Rows,
		},
	}

	status := http.StatusOK
	if !h.serving.Ready() {
		health.Status = models.HealthStatusFail
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - model, subsystem and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	s := h.serving.Status()
	out := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if s.ModelLoaded {
		out.Model = &models.ModelStatus{
			TrainedAt:    models.Timestamp(s.TrainedAt),
			TrainingRows: s.TrainingRows,
			TrainingMSE:  s.TrainingMSE,
		}
		out.Subsystems = append(out.Subsystems, models.SubsystemStatus{Name: "model", Status: models.HealthStatusOK})
	} else {
		out.Subsystems = append(out.Subsystems, subsystemFailure("model", "no model artifact loaded"))
	}

	if s.Rows > 0 {
		out.Subsystems = append(out.Subsystems, models.SubsystemStatus{Name: "master-data", Status: models.HealthStatusOK})
	} else {
		out.Subsystems = append(out.Subsystems, subsystemFailure("master-data", "no aligned rows loaded"))
	}

	if h.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.database.Ping(ctx)
		cancel()
		if err != nil {
			out.Subsystems = append(out.Subsystems, subsystemFailure("database", err.Error()))
		} else {
			out.Subsystems = append(out.Subsystems, models.SubsystemStatus{Name: "database", Status: models.HealthStatusOK})
		}
	}

	if h.providers != nil {
		for _, p := range h.providers.AllHealth() {
			out.Providers = append(out.Providers, providerStatus(p))
		}
	}

	for _, sub := range out.Subsystems {
		if sub.Status == models.HealthStatusFail {
			out.Status = models.HealthStatusDegraded
		}
	}
	for _, p := range out.Providers {
		if p.Status != models.HealthStatusOK {
			out.Status = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, out)
}

func subsystemFailure(name, detail string) models.SubsystemStatus {
	return models.SubsystemStatus{Name: name, Status: models.HealthStatusFail, Detail: &detail}
}

func providerStatus(p *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:      p.Name,
		CircuitState:  p.CircuitState.String(),
		LastSuccessAt: models.TimestampPtr(p.LastSuccessAt),
		LastFailureAt: models.TimestampPtr(p.LastFailureAt),
	}
	switch p.Status() {
	case resilience.StatusUnhealthy:
		ps.Status = models.HealthStatusFail
	case resilience.StatusDegraded:
		ps.Status = models.HealthStatusDegraded
	default:
		ps.Status = models.HealthStatusOK
	}
	if p.LastError != "" {
		msg := p.LastError
		ps.Message = &msg
	}
	return ps
}
