// Package app wires configuration into the components shared by the
// pipeline, worker and API binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/align"
	"github.com/auracast/auracast/internal/config"
	"github.com/auracast/auracast/internal/database"
	"github.com/auracast/auracast/internal/groundstation"
	"github.com/auracast/auracast/internal/groundstation/openaq"
	"github.com/auracast/auracast/internal/model"
	"github.com/auracast/auracast/internal/pipeline"
	"github.com/auracast/auracast/internal/resilience"
	"github.com/auracast/auracast/internal/satellite"
	"github.com/auracast/auracast/internal/weather"
	"github.com/auracast/auracast/internal/weather/openweathermap"
)

// NewLogger returns the JSON logger used by every binary. Development
// environments get human-readable console output.
func NewLogger(cfg *config.Config, service, version string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(out).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// Paths maps the configured file locations onto pipeline paths.
func Paths(cfg *config.Config) pipeline.Paths {
	return pipeline.Paths{
		SatelliteGrid: cfg.SatelliteGridFile,
		Satellite:     cfg.SatelliteFile,
		Ground:        cfg.GroundFile,
		Weather:       cfg.WeatherFile,
		Master:        cfg.MasterFile,
	}
}

// GroundQuery builds the OpenAQ query from configuration.
func GroundQuery(cfg *config.Config) groundstation.Query {
	return groundstation.Query{
		Lat:          cfg.OpenAQLat,
		Lon:          cfg.OpenAQLon,
		RadiusMeters: cfg.OpenAQRadiusMeters,
		ParameterID:  cfg.OpenAQParameterID,
		Limit:        cfg.OpenAQLimit,
	}
}

// OpenModelStore returns the configured model store. With the postgres
// backend the pool is returned too and the caller must close it; with the
// file backend it is nil.
func OpenModelStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (model.Store, *pgxpool.Pool, error) {
	if cfg.ModelStore != config.ModelStorePostgres {
		return model.NewFileStore(cfg.ModelFile), nil, nil
	}

	dbConfig, err := database.ConfigFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("database config: %w", err)
	}
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect model database: %w", err)
	}

	store := model.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")
	return store, pool, nil
}

// PipelineOptions are the process-level collaborators of BuildPipeline.
type PipelineOptions struct {
	Logger zerolog.Logger

	// Registerer receives the pipeline metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	// Providers receives the provider clients for health reporting. Nil
	// creates a fresh registry.
	Providers *resilience.Registry
}

// Pipeline is a fully wired pipeline with the resources it owns.
type Pipeline struct {
	*pipeline.Pipeline

	Providers *resilience.Registry
	Store     model.Store
	DB        *pgxpool.Pool

	sink pipeline.Sink
}

// Close releases the Kafka writer and the database pool.
func (p *Pipeline) Close() error {
	var errs []error
	if p.sink != nil {
		errs = append(errs, p.sink.Close())
	}
	if p.DB != nil {
		p.DB.Close()
	}
	return errors.Join(errs...)
}

// BuildPipeline wires the satellite reader, provider clients, model store,
// optional Kafka sink and metrics into a pipeline.
func BuildPipeline(ctx context.Context, cfg *config.Config, opts PipelineOptions) (*Pipeline, error) {
	logger := opts.Logger
	providers := opts.Providers
	if providers == nil {
		providers = resilience.NewRegistry()
	}

	metrics := pipeline.NewMetricsForTesting()
	if opts.Registerer != nil {
		metrics = pipeline.NewMetrics(opts.Registerer)
	}

	store, pool, err := OpenModelStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.OpenAQAPIKey == "" {
		logger.Warn().Msg("OPENAQ_API_KEY not set, ground fetch will likely be rejected")
	}
	if cfg.OpenWeatherAPIKey == "" {
		logger.Warn().Msg("OPENWEATHER_API_KEY not set, weather fetch will likely be rejected")
	}

	groundClient := openaq.NewClient(openaq.ClientConfig{
		BaseURL:  cfg.OpenAQBaseURL,
		APIKey:   cfg.OpenAQAPIKey,
		Timeout:  cfg.HTTPTimeout,
		Registry: providers,
		Logger:   logger,
	})
	weatherClient := openweathermap.NewClient(openweathermap.ClientConfig{
		BaseURL:  cfg.OpenWeatherBaseURL,
		APIKey:   cfg.OpenWeatherAPIKey,
		Timeout:  cfg.HTTPTimeout,
		Registry: providers,
		Logger:   logger,
	})

	var sink pipeline.Sink
	if cfg.KafkaEnabled() {
		sink = pipeline.NewKafkaSink(pipeline.KafkaSinkConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		logger.Info().
			Strs("brokers", cfg.KafkaBrokers).
			Str("topic", cfg.KafkaTopic).
			Msg("publishing aligned rows to kafka")
	}

	p := pipeline.New(pipeline.Config{
		Paths:         Paths(cfg),
		DensityColumn: cfg.DensityColumn,
		Satellite:     satellite.NewReader(satellite.ReaderConfig{Logger: logger}),
		Ground: groundstation.NewFetcher(groundstation.FetcherConfig{
			Provider: groundClient,
			Logger:   logger,
		}),
		GroundQuery: GroundQuery(cfg),
		Weather: weather.NewFetcher(weather.FetcherConfig{
			Provider:     weatherClient,
			Logger:       logger,
			RequestDelay: cfg.WeatherRequestDelay,
		}),
		SampleRate: cfg.WeatherSampleRate,
		Aligner:    align.New(align.Config{Logger: logger}),
		ModelStore: store,
		Sink:       sink,
		Metrics:    metrics,
		Logger:     logger,
	})

	return &Pipeline{
		Pipeline:  p,
		Providers: providers,
		Store:     store,
		DB:        pool,
		sink:      sink,
	}, nil
}
