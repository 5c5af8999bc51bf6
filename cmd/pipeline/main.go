// Package main provides the AuraCast batch pipeline CLI. Each stage can run on
// its own; "run" executes them all in order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/auracast/auracast/internal/app"
	"github.com/auracast/auracast/internal/config"
	"github.com/auracast/auracast/internal/pipeline"
	"github.com/auracast/auracast/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "auracast-pipeline"

// cli holds state shared by the subcommands once the root pre-run has loaded it.
type cli struct {
	cfg         *config.Config
	log         zerolog.Logger
	registry    *prometheus.Registry
	metricsFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "auracast-pipeline",
		Short:         "AuraCast data pipeline",
		Long:          "Extracts satellite NO2, fetches ground and weather data, aligns them and trains the PM2.5 model.",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg
			c.log = app.NewLogger(cfg, serviceName, Version)
			c.registry = prometheus.NewRegistry()
			c.registry.MustRegister(collectors.NewGoCollector())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.metricsFile, "metrics-textfile", "",
		"write Prometheus metrics to this file after the command (node_exporter textfile format)")

	var skipFetch bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		RunE: c.withPipeline(func(ctx context.Context, p *app.Pipeline) error {
			rep, err := p.Run(ctx, pipeline.RunOptions{SkipFetch: skipFetch})
			if err != nil {
				return err
			}
			c.log.Info().
				Int("satellite_rows", rep.SatelliteRows).
				Int("ground_rows", rep.GroundRows).
				Int("weather_rows", rep.WeatherRows).
				Int("weather_failed", rep.WeatherFailed).
				Int("master_rows", rep.MasterRows).
				Bool("empty_reference", rep.EmptyReference).
				Dur("duration", rep.Duration).
				Msg("pipeline finished")
			return nil
		}),
	}
	runCmd.Flags().BoolVar(&skipFetch, "skip-fetch", false, "reuse the existing satellite, ground and weather files")

	root.AddCommand(
		runCmd,
		&cobra.Command{
			Use:   "satellite",
			Short: "Extract satellite cells from the grid file",
			RunE: c.withPipeline(func(ctx context.Context, p *app.Pipeline) error {
				_, err := p.ExtractSatellite(ctx)
				return err
			}),
		},
		&cobra.Command{
			Use:   "ground",
			Short: "Fetch the latest ground-station readings",
			RunE: c.withPipeline(func(ctx context.Context, p *app.Pipeline) error {
				_, err := p.FetchGround(ctx)
				return err
			}),
		},
		&cobra.Command{
			Use:   "weather",
			Short: "Fetch current weather for sampled satellite cells",
			RunE: c.withPipeline(func(ctx context.Context, p *app.Pipeline) error {
				_, err := p.FetchWeather(ctx)
				return err
			}),
		},
		&cobra.Command{
			Use:   "align",
			Short: "Join satellite, weather and ground data into the master table",
			RunE: c.withPipeline(func(ctx context.Context, p *app.Pipeline) error {
				_, err := p.Align(ctx)
				return err
			}),
		},
		&cobra.Command{
			Use:   "train",
			Short: "Fit the PM2.5 model on the master table",
			RunE: c.withPipeline(func(ctx context.Context, p *app.Pipeline) error {
				_, err := p.Train(ctx)
				return err
			}),
		},
	)

	return root
}

// withPipeline builds the pipeline and telemetry around fn and tears them
// down afterwards.
func (c *cli) withPipeline(fn func(context.Context, *app.Pipeline) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tp, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:    serviceName,
			ServiceVersion: Version,
			Environment:    c.cfg.Env,
			OTLPEndpoint:   c.cfg.OTLPEndpoint,
			Enabled:        c.cfg.OTelEnabled,
		})
		if err != nil {
			return fmt.Errorf("initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				c.log.Error().Err(err).Msg("failed to shutdown telemetry")
			}
		}()

		p, err := app.BuildPipeline(ctx, c.cfg, app.PipelineOptions{
			Logger:     c.log,
			Registerer: c.registry,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				c.log.Error().Err(err).Msg("failed to close pipeline resources")
			}
		}()

		runErr := fn(ctx, p)

		if c.metricsFile != "" {
			if err := prometheus.WriteToTextfile(c.metricsFile, c.registry); err != nil {
				c.log.Error().Err(err).Str("path", c.metricsFile).Msg("failed to write metrics")
			}
		}
		return runErr
	}
}
