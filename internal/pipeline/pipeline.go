// Package pipeline composes the batch stages into one run: satellite
// extraction, ground and weather fetches, alignment and training. Each stage
// reads its input files, produces a new snapshot and writes its output file,
// so any stage can be rerun on its own.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/auracast/auracast/internal/align"
	"github.com/auracast/auracast/internal/groundstation"
	"github.com/auracast/auracast/internal/model"
	"github.com/auracast/auracast/internal/observation"
	"github.com/auracast/auracast/internal/spatial"
	"github.com/auracast/auracast/internal/table"
	"github.com/auracast/auracast/internal/telemetry"
	"github.com/auracast/auracast/internal/weather"
)

var tracer = telemetry.Tracer("github.com/auracast/auracast/internal/pipeline")

// Stage names, used as metric labels and log fields.
const (
	StageSatellite = "satellite"
	StageGround    = "ground"
	StageWeather   = "weather"
	StageAlign     = "align"
	StageTrain     = "train"
)

// ErrNotConfigured is returned when a stage runs without the collaborator it needs.
var ErrNotConfigured = errors.New("stage not configured")

// SatelliteSource turns a satellite grid file into observations.
type SatelliteSource interface {
	ReadFile(path string) ([]observation.Satellite, error)
}

// GroundFetcher retrieves ground readings for a query region.
type GroundFetcher interface {
	Fetch(ctx context.Context, q groundstation.Query) (groundstation.Result, error)
}

// WeatherFetcher retrieves current conditions for a list of points.
type WeatherFetcher interface {
	Fetch(ctx context.Context, points []spatial.Point) (weather.Result, error)
}

// Paths locates the input grid and the intermediate files.
type Paths struct {
	SatelliteGrid string
	Satellite     string
	Ground        string
	Weather       string
	Master        string
}

// Config wires a Pipeline. Fetchers may be nil when only offline stages run.
type Config struct {
	Paths         Paths
	DensityColumn string

	Satellite   SatelliteSource
	Ground      GroundFetcher
	GroundQuery groundstation.Query
	Weather     WeatherFetcher
	SampleRate  int
	Aligner     *align.Aligner
	ModelStore  model.Store

	// Sink, when set, receives the aligned rows after every alignment.
	Sink Sink

	Metrics *Metrics
	Logger  zerolog.Logger
	Clock   clockwork.Clock
}

// Pipeline runs the batch stages.
type Pipeline struct {
	paths         Paths
	densityColumn string

	satellite   SatelliteSource
	ground      GroundFetcher
	groundQuery groundstation.Query
	weather     WeatherFetcher
	sampleRate  int
	aligner     *align.Aligner
	store       model.Store
	sink        Sink

	metrics *Metrics
	logger  zerolog.Logger
	clock   clockwork.Clock
}

// New creates a Pipeline, filling unset options with defaults.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		paths:         cfg.Paths,
		densityColumn: cfg.DensityColumn,
		satellite:     cfg.Satellite,
		ground:        cfg.Ground,
		groundQuery:   cfg.GroundQuery,
		weather:       cfg.Weather,
		sampleRate:    cfg.SampleRate,
		aligner:       cfg.Aligner,
		store:         cfg.ModelStore,
		sink:          cfg.Sink,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		clock:         cfg.Clock,
	}
	if p.densityColumn == "" {
		p.densityColumn = table.DefaultDensityColumn
	}
	if p.sampleRate <= 0 {
		p.sampleRate = weather.DefaultSampleRate
	}
	if p.aligner == nil {
		p.aligner = align.New(align.Config{Logger: cfg.Logger})
	}
	if p.metrics == nil {
		p.metrics = NewMetricsForTesting()
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	return p
}

// RunOptions controls a full run.
type RunOptions struct {
	// SkipFetch reuses the existing satellite, ground and weather files.
	SkipFetch bool
}

// Report summarises a full run.
type Report struct {
	SatelliteRows  int
	GroundRows     int
	WeatherRows    int
	WeatherFailed  int
	MasterRows     int
	EmptyReference bool
	Model          *model.Model
	Duration       time.Duration
}

// Run executes every stage in order and stops at the first stage error.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (Report, error) {
	start := p.clock.Now()
	var rep Report

	err := p.run(ctx, opts, &rep)
	rep.Duration = p.clock.Since(start)

	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		p.logger.Error().Err(err).Dur("duration", rep.Duration).Msg("pipeline run failed")
		return rep, err
	}

	p.metrics.Runs.WithLabelValues("success").Inc()
	p.metrics.LastSuccessfulRun.Set(float64(p.clock.Now().Unix()))
	p.logger.Info().
		Int("master_rows", rep.MasterRows).
		Int("training_rows", rep.Model.TrainingRows).
		Float64("training_mse", rep.Model.TrainingMSE).
		Dur("duration", rep.Duration).
		Msg("pipeline run complete")
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, opts RunOptions, rep *Report) error {
	if !opts.SkipFetch {
		n, err := p.ExtractSatellite(ctx)
		if err != nil {
			return err
		}
		rep.SatelliteRows = n

		if rep.GroundRows, err = p.FetchGround(ctx); err != nil {
			return err
		}

		wx, err := p.FetchWeather(ctx)
		if err != nil {
			return err
		}
		rep.WeatherRows = len(wx.Readings)
		rep.WeatherFailed = wx.Failed
	} else {
		p.logger.Info().Msg("skipping fetch stages, using existing input files")
	}

	stats, err := p.Align(ctx)
	if err != nil {
		return err
	}
	rep.MasterRows = stats.Rows
	rep.EmptyReference = stats.EmptyReference

	m, err := p.Train(ctx)
	if err != nil {
		return err
	}
	rep.Model = m
	return nil
}

// ExtractSatellite reads the satellite grid and writes the flattened
// satellite table. It returns the number of rows written.
func (p *Pipeline) ExtractSatellite(ctx context.Context) (int, error) {
	var n int
	err := p.stage(ctx, StageSatellite, func(ctx context.Context) error {
		if p.satellite == nil {
			return fmt.Errorf("%w: satellite reader", ErrNotConfigured)
		}
		rows, err := p.satellite.ReadFile(p.paths.SatelliteGrid)
		if err != nil {
			return err
		}
		if err := table.WriteSatelliteFile(p.paths.Satellite, p.densityColumn, rows); err != nil {
			return err
		}
		n = len(rows)
		p.metrics.RowsWritten.WithLabelValues(StageSatellite).Add(float64(n))
		p.logger.Info().Int("rows", n).Str("path", p.paths.Satellite).Msg("satellite table written")
		return nil
	})
	return n, err
}

// FetchGround queries the ground network and writes the ground table. An
// upstream failure writes a header-only table and is not an error.
func (p *Pipeline) FetchGround(ctx context.Context) (int, error) {
	var n int
	err := p.stage(ctx, StageGround, func(ctx context.Context) error {
		if p.ground == nil {
			return fmt.Errorf("%w: ground fetcher", ErrNotConfigured)
		}
		res, err := p.ground.Fetch(ctx, p.groundQuery)
		if err != nil {
			return err
		}
		if res.Err != nil {
			p.metrics.FetchFailures.WithLabelValues(StageGround).Inc()
		}
		p.metrics.RowsDropped.WithLabelValues(StageGround).Add(float64(res.Skipped))

		if err := table.WriteGroundFile(p.paths.Ground, res.Readings); err != nil {
			return err
		}
		n = len(res.Readings)
		p.metrics.RowsWritten.WithLabelValues(StageGround).Add(float64(n))
		p.logger.Info().Int("rows", n).Int("skipped", res.Skipped).Str("path", p.paths.Ground).Msg("ground table written")
		return nil
	})
	return n, err
}

// FetchWeather samples points from the satellite table, fetches their current
// conditions and writes the weather table. Failed points are skipped.
func (p *Pipeline) FetchWeather(ctx context.Context) (weather.Result, error) {
	var res weather.Result
	err := p.stage(ctx, StageWeather, func(ctx context.Context) error {
		if p.weather == nil {
			return fmt.Errorf("%w: weather fetcher", ErrNotConfigured)
		}
		sats, skipped, err := table.ReadSatelliteFile(p.paths.Satellite, p.densityColumn)
		if err != nil {
			return err
		}
		p.metrics.RowsDropped.WithLabelValues(StageWeather).Add(float64(skipped))

		points, err := weather.SamplePoints(sats, p.sampleRate)
		if err != nil {
			return err
		}
		p.logger.Info().
			Int("satellite_rows", len(sats)).
			Int("sample_rate", p.sampleRate).
			Int("points", len(points)).
			Msg("sampled weather points")

		if res, err = p.weather.Fetch(ctx, points); err != nil {
			return err
		}
		p.metrics.FetchFailures.WithLabelValues(StageWeather).Add(float64(res.Failed))

		if err := table.WriteWeatherFile(p.paths.Weather, res.Readings); err != nil {
			return err
		}
		p.metrics.RowsWritten.WithLabelValues(StageWeather).Add(float64(len(res.Readings)))
		return nil
	})
	return res, err
}

// Align reads the three input tables, aligns them and writes the master
// table. Every input file must exist; a missing one aborts the stage.
func (p *Pipeline) Align(ctx context.Context) (align.Stats, error) {
	var stats align.Stats
	err := p.stage(ctx, StageAlign, func(ctx context.Context) error {
		sats, satSkipped, err := table.ReadSatelliteFile(p.paths.Satellite, p.densityColumn)
		if err != nil {
			return err
		}
		wx, wxSkipped, err := table.ReadWeatherFile(p.paths.Weather)
		if err != nil {
			return err
		}
		ground, groundSkipped, err := table.ReadGroundFile(p.paths.Ground)
		if err != nil {
			return err
		}

		rows, st := p.aligner.Align(sats, wx, ground)
		stats = st

		dropped := satSkipped + wxSkipped + groundSkipped +
			st.SatelliteDropped + st.WeatherDropped + st.GroundDropped
		p.metrics.RowsDropped.WithLabelValues(StageAlign).Add(float64(dropped))
		p.metrics.GroundReferenceSet.Set(float64(st.GroundIn - st.GroundDropped))

		if err := table.WriteMasterFile(p.paths.Master, p.densityColumn, rows); err != nil {
			return err
		}
		p.metrics.RowsWritten.WithLabelValues(StageAlign).Add(float64(len(rows)))
		p.logger.Info().Int("rows", len(rows)).Str("path", p.paths.Master).Msg("master table written")

		if p.sink != nil {
			if err := p.sink.Publish(ctx, rows); err != nil {
				return err
			}
			p.logger.Info().Int("rows", len(rows)).Msg("aligned rows published")
		}
		return nil
	})
	return stats, err
}

// Train fits a model on the master table and saves it, replacing any
// previous artifact.
func (p *Pipeline) Train(ctx context.Context) (*model.Model, error) {
	var m *model.Model
	err := p.stage(ctx, StageTrain, func(ctx context.Context) error {
		if p.store == nil {
			return fmt.Errorf("%w: model store", ErrNotConfigured)
		}
		rows, skipped, err := table.ReadMasterFile(p.paths.Master, p.densityColumn)
		if err != nil {
			return err
		}

		ds, err := model.Assemble(rows)
		if err != nil {
			return err
		}
		p.metrics.RowsDropped.WithLabelValues(StageTrain).Add(float64(skipped + ds.Dropped))

		if m, err = model.Fit(ds, p.clock.Now().UTC()); err != nil {
			return err
		}
		if err := p.store.Save(ctx, m); err != nil {
			return err
		}

		p.metrics.TrainingRows.Set(float64(m.TrainingRows))
		p.metrics.TrainingMSE.Set(m.TrainingMSE)
		p.logger.Info().
			Int("rows", m.TrainingRows).
			Int("dropped", ds.Dropped).
			Float64("training_mse", m.TrainingMSE).
			Float64("intercept", m.Intercept).
			Floats64("coefficients", m.Coefficients[:]).
			Msg("model trained")
		return nil
	})
	return m, err
}

// stage times fn and records its outcome.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "pipeline."+name, trace.WithAttributes(attribute.String("pipeline.stage", name)))
	defer span.End()

	start := p.clock.Now()
	p.logger.Info().Str("stage", name).Msg("stage started")

	err := fn(ctx)
	elapsed := p.clock.Since(start)
	p.metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.StageErrors.WithLabelValues(name).Inc()
		p.logger.Error().Err(err).Str("stage", name).Dur("duration", elapsed).Msg("stage failed")
		return fmt.Errorf("%s stage: %w", name, err)
	}

	p.logger.Info().Str("stage", name).Dur("duration", elapsed).Msg("stage complete")
	return nil
}
