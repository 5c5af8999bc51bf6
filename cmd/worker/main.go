// Package main provides the AuraCast background worker. It runs the pipeline
// on Pub/Sub job messages and, optionally, on a fixed schedule.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/app"
	"github.com/auracast/auracast/internal/config"
	"github.com/auracast/auracast/internal/telemetry"
	"github.com/auracast/auracast/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "auracast-worker"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := app.NewLogger(cfg, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting AuraCast worker")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p, err := app.BuildPipeline(ctx, cfg, app.PipelineOptions{
		Logger:     log,
		Registerer: registry,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pipeline resources")
		}
	}()

	jobs := worker.NewJobHandler(worker.JobHandlerConfig{
		Runner:    p,
		Providers: p.Providers,
		Timeout:   cfg.WorkerRunTimeout,
		Logger:    log,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		stats := jobs.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // best effort
			"status":       "healthy",
			"version":      Version,
			"running":      stats.Running,
			"runs":         stats.Runs,
			"failures":     stats.Failures,
			"lastRunAt":    stats.LastRunAt,
			"lastDuration": stats.LastDuration.String(),
			"lastError":    stats.LastError,
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health and metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
			cancel()
		}
	}()

	var wg sync.WaitGroup

	if cfg.PubSubProjectID != "" {
		sub, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Jobs:             jobs,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer sub.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sub.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub receive stopped")
				cancel()
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set, not listening for job messages")
	}

	if cfg.WorkerInterval > 0 {
		scheduler := worker.NewScheduler(worker.SchedulerConfig{
			Handler:  jobs,
			Interval: cfg.WorkerInterval,
			Logger:   log,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scheduler.Start(ctx); err != nil {
				log.Error().Err(err).Msg("scheduler stopped")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down worker")

	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
