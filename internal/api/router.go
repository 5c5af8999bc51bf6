// Package api provides the HTTP API for AuraCast.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/api/handler"
	"github.com/auracast/auracast/internal/api/middleware"
	"github.com/auracast/auracast/internal/api/response"
	"github.com/auracast/auracast/internal/resilience"
	"github.com/auracast/auracast/internal/serving"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Serving is the loaded model and master table. Nil serves an empty
	// context, so data routes answer 503 and /v1/ops/ready reports not ready.
	Serving   *serving.Context
	Providers *resilience.Registry
	Database  handler.Pinger

	RequireTLS     bool
	ValidationRows int
	MapPoints      int
	AlertThreshold float64
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "auracast-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, req, "no route matches "+req.URL.Path)
	})

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Serving:   cfg.Serving,
		Providers: cfg.Providers,
		Database:  cfg.Database,
	})
	forecastHandler := handler.NewForecastHandler(handler.ForecastHandlerConfig{
		Serving:        cfg.Serving,
		ValidationRows: cfg.ValidationRows,
		MapPoints:      cfg.MapPoints,
	})
	alertHandler := handler.NewAlertHandler(cfg.AlertThreshold)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)
	predictRateLimit := middleware.RateLimitByIP(middleware.PredictRateLimit)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]any{
			"service": serviceName,
			"version": cfg.Version,
			"routes": []string{
				"/api/forecast", "/api/predict", "/api/validation",
				"/api/alert", "/api/map", "/api/comparison",
			},
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(standardRateLimit)
		r.Get("/forecast", forecastHandler.Forecast)
		r.Get("/validation", forecastHandler.Validation)
		r.Get("/map", forecastHandler.Map)
		r.Get("/comparison", forecastHandler.Comparison)
		r.Get("/alert", alertHandler.Alert)
		r.With(predictRateLimit, middleware.RequireJSON).Post("/predict", forecastHandler.Predict)
	})

	r.Route("/v1/ops", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.Get("/status", opsHandler.SystemStatus)
	})

	return r
}
