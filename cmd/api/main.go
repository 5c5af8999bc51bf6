// Package main provides the entrypoint for the AuraCast API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/api"
	"github.com/auracast/auracast/internal/api/handler"
	"github.com/auracast/auracast/internal/api/middleware"
	"github.com/auracast/auracast/internal/app"
	"github.com/auracast/auracast/internal/config"
	"github.com/auracast/auracast/internal/serving"
	"github.com/auracast/auracast/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "auracast-api"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := app.NewLogger(cfg, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting AuraCast API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	store, pool, err := app.OpenModelStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open model store")
	}
	var db handler.Pinger
	if pool != nil {
		defer pool.Close()
		db = pool
	}

	// Model and data are loaded once; a new pipeline run needs a restart.
	loadCtx, cancelLoad := context.WithTimeout(ctx, 30*time.Second)
	sc, err := serving.Load(loadCtx, serving.LoadConfig{
		Store:         store,
		MasterPath:    cfg.MasterFile,
		DensityColumn: cfg.DensityColumn,
		Logger:        log,
	})
	cancelLoad()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load serving context")
	}
	if !sc.Ready() {
		log.Warn().Msg("model or master table missing, data routes will answer 503 until the pipeline has run")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		Serving:        sc,
		Database:       db,
		RequireTLS:     cfg.Env == "production",
		ValidationRows: cfg.ValidationRows,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
