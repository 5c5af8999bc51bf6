package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auracast/auracast/internal/groundstation"
	"github.com/auracast/auracast/internal/model"
	"github.com/auracast/auracast/internal/observation"
	"github.com/auracast/auracast/internal/pipeline"
	"github.com/auracast/auracast/internal/spatial"
	"github.com/auracast/auracast/internal/table"
	"github.com/auracast/auracast/internal/weather"
)

var trainedAt = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

type stubSatellite struct {
	rows []observation.Satellite
	err  error
}

func (s stubSatellite) ReadFile(string) ([]observation.Satellite, error) {
	return s.rows, s.err
}

type stubGround struct {
	res   groundstation.Result
	calls int
}

func (s *stubGround) Fetch(context.Context, groundstation.Query) (groundstation.Result, error) {
	s.calls++
	return s.res, nil
}

// stubWeather answers every point with conditions derived from its index.
type stubWeather struct {
	points []spatial.Point
}

func (s *stubWeather) Fetch(_ context.Context, points []spatial.Point) (weather.Result, error) {
	s.points = points
	var res weather.Result
	for i, p := range points {
		res.Readings = append(res.Readings, observation.Weather{
			Lat:           p.Lat,
			Lon:           p.Lon,
			Temperature:   20 + float64(i),
			WindSpeed:     2 + float64(i%3),
			WindDirection: float64(45 * i),
			Humidity:      60,
			QueriedAt:     trainedAt,
		})
	}
	return res, nil
}

type recordingSink struct {
	rows   []observation.Aligned
	closed bool
}

func (s *recordingSink) Publish(_ context.Context, rows []observation.Aligned) error {
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func satelliteCells() []observation.Satellite {
	return []observation.Satellite{
		{Lat: 40.78, Lon: -73.96, Density: 15.5},
		{Lat: 40.71, Lon: -74.01, Density: 12.1},
		{Lat: 40.65, Lon: -73.90, Density: 9.4},
		{Lat: 40.60, Lon: -73.80, Density: 18.2},
		{Lat: 40.85, Lon: -73.88, Density: 11.0},
		{Lat: 40.75, Lon: -73.70, Density: 13.3},
	}
}

func groundReadings() []observation.Ground {
	return []observation.Ground{
		{Lat: 40.80, Lon: -73.95, Value: 14.8, Unit: "µg/m³", LocationName: "Harlem", ParameterName: "pm25"},
		{Lat: 40.62, Lon: -73.85, Value: 9.1, Unit: "µg/m³", LocationName: "Jamaica Bay", ParameterName: "pm25"},
	}
}

func testPaths(t *testing.T) pipeline.Paths {
	t.Helper()
	dir := t.TempDir()
	return pipeline.Paths{
		SatelliteGrid: filepath.Join(dir, "raw", "grid.json"),
		Satellite:     filepath.Join(dir, "processed", "satellite.csv"),
		Ground:        filepath.Join(dir, "raw", "ground.csv"),
		Weather:       filepath.Join(dir, "processed", "weather.csv"),
		Master:        filepath.Join(dir, "processed", "master.csv"),
	}
}

type fixture struct {
	pipeline *pipeline.Pipeline
	paths    pipeline.Paths
	ground   *stubGround
	weather  *stubWeather
	store    *model.InMemoryStore
	sink     *recordingSink
	metrics  *pipeline.Metrics
}

func newFixture(t *testing.T, ground groundstation.Result) fixture {
	t.Helper()
	f := fixture{
		paths:   testPaths(t),
		ground:  &stubGround{res: ground},
		weather: &stubWeather{},
		store:   model.NewInMemoryStore(),
		sink:    &recordingSink{},
		metrics: pipeline.NewMetricsForTesting(),
	}
	f.pipeline = pipeline.New(pipeline.Config{
		Paths:       f.paths,
		Satellite:   stubSatellite{rows: satelliteCells()},
		Ground:      f.ground,
		GroundQuery: groundstation.DefaultQuery(),
		Weather:     f.weather,
		SampleRate:  1,
		ModelStore:  f.store,
		Sink:        f.sink,
		Metrics:     f.metrics,
		Logger:      zerolog.Nop(),
		Clock:       clockwork.NewFakeClockAt(trainedAt),
	})
	return f
}

func TestRun_AllStages(t *testing.T) {
	f := newFixture(t, groundstation.Result{Readings: groundReadings()})

	rep, err := f.pipeline.Run(context.Background(), pipeline.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 6, rep.SatelliteRows)
	assert.Equal(t, 2, rep.GroundRows)
	assert.Equal(t, 6, rep.WeatherRows)
	assert.Equal(t, 6, rep.MasterRows)
	assert.False(t, rep.EmptyReference)
	require.NotNil(t, rep.Model)
	assert.Equal(t, 6, rep.Model.TrainingRows)
	assert.Equal(t, trainedAt, rep.Model.TrainedAt)

	saved, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rep.Model.Coefficients, saved.Coefficients)

	master, skipped, err := table.ReadMasterFile(f.paths.Master, table.DefaultDensityColumn)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, master, 6)
	require.NotNil(t, master[0].NearestGroundValue)
	assert.InDelta(t, 14.8, *master[0].NearestGroundValue, 1e-9)

	assert.Len(t, f.sink.rows, 6)
	assert.Len(t, f.weather.points, 6)

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Runs.WithLabelValues("success")), 0)
	assert.InDelta(t, 6, testutil.ToFloat64(f.metrics.RowsWritten.WithLabelValues(pipeline.StageAlign)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.GroundReferenceSet), 0)
	assert.InDelta(t, 6, testutil.ToFloat64(f.metrics.TrainingRows), 0)
}

func TestRun_MasterDatetimeFromScanTime(t *testing.T) {
	scan := time.Date(2024, 5, 1, 14, 3, 0, 0, time.UTC)
	measured := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	cells := satelliteCells()
	for i := range cells {
		cells[i].ObservedAt = &scan
	}
	ground := groundReadings()
	for i := range ground {
		ground[i].MeasuredAt = &measured
	}

	f := newFixture(t, groundstation.Result{Readings: ground})
	f.pipeline = pipeline.New(pipeline.Config{
		Paths:       f.paths,
		Satellite:   stubSatellite{rows: cells},
		Ground:      f.ground,
		GroundQuery: groundstation.DefaultQuery(),
		Weather:     f.weather,
		SampleRate:  1,
		ModelStore:  f.store,
		Logger:      zerolog.Nop(),
		Clock:       clockwork.NewFakeClockAt(trainedAt),
	})

	_, err := f.pipeline.Run(context.Background(), pipeline.RunOptions{})
	require.NoError(t, err)

	master, _, err := table.ReadMasterFile(f.paths.Master, table.DefaultDensityColumn)
	require.NoError(t, err)
	require.Len(t, master, len(cells))
	for _, r := range master {
		require.NotNil(t, r.Datetime)
		assert.Equal(t, scan, *r.Datetime)
	}
}

func TestRun_MasterDatetimeFallsBackToGround(t *testing.T) {
	measured := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	ground := groundReadings()
	for i := range ground {
		ground[i].MeasuredAt = &measured
	}

	f := newFixture(t, groundstation.Result{Readings: ground})
	_, err := f.pipeline.Run(context.Background(), pipeline.RunOptions{})
	require.NoError(t, err)

	master, _, err := table.ReadMasterFile(f.paths.Master, table.DefaultDensityColumn)
	require.NoError(t, err)
	require.NotEmpty(t, master)
	for _, r := range master {
		require.NotNil(t, r.Datetime)
		assert.Equal(t, measured, *r.Datetime)
	}
}

func TestRun_GroundFailureWritesEmptyTable(t *testing.T) {
	f := newFixture(t, groundstation.Result{
		Err: errors.Join(observation.ErrUpstreamFetch, errors.New("503")),
	})

	rep, err := f.pipeline.Run(context.Background(), pipeline.RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, observation.ErrNoTrainableData)
	assert.Contains(t, err.Error(), "train stage")

	assert.Zero(t, rep.GroundRows)
	assert.Equal(t, 6, rep.MasterRows)
	assert.True(t, rep.EmptyReference)

	ground, _, err := table.ReadGroundFile(f.paths.Ground)
	require.NoError(t, err)
	assert.Empty(t, ground)

	master, _, err := table.ReadMasterFile(f.paths.Master, table.DefaultDensityColumn)
	require.NoError(t, err)
	for _, r := range master {
		assert.Nil(t, r.NearestGroundValue)
		assert.Nil(t, r.DistanceKm)
	}

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.FetchFailures.WithLabelValues(pipeline.StageGround)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StageErrors.WithLabelValues(pipeline.StageTrain)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Runs.WithLabelValues("error")), 0)
}

func TestRun_SkipFetchReusesFiles(t *testing.T) {
	f := newFixture(t, groundstation.Result{Readings: groundReadings()})
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, pipeline.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, f.ground.calls)

	rep, err := f.pipeline.Run(ctx, pipeline.RunOptions{SkipFetch: true})
	require.NoError(t, err)
	assert.Equal(t, 1, f.ground.calls)
	assert.Zero(t, rep.SatelliteRows)
	assert.Equal(t, 6, rep.MasterRows)
}

func TestRun_SkipFetchMissingInput(t *testing.T) {
	f := newFixture(t, groundstation.Result{})

	_, err := f.pipeline.Run(context.Background(), pipeline.RunOptions{SkipFetch: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, observation.ErrFileNotFound)
	assert.Contains(t, err.Error(), f.paths.Satellite)

	_, statErr := os.Stat(f.paths.Master)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractSatellite_ReaderError(t *testing.T) {
	paths := testPaths(t)
	p := pipeline.New(pipeline.Config{
		Paths:     paths,
		Satellite: stubSatellite{err: observation.MissingFile(paths.SatelliteGrid)},
		Logger:    zerolog.Nop(),
	})

	_, err := p.ExtractSatellite(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, observation.ErrFileNotFound)
	assert.Contains(t, err.Error(), "satellite stage")
}

func TestStages_NotConfigured(t *testing.T) {
	p := pipeline.New(pipeline.Config{Paths: testPaths(t), Logger: zerolog.Nop()})
	ctx := context.Background()

	_, err := p.ExtractSatellite(ctx)
	assert.ErrorIs(t, err, pipeline.ErrNotConfigured)

	_, err = p.FetchGround(ctx)
	assert.ErrorIs(t, err, pipeline.ErrNotConfigured)

	_, err = p.FetchWeather(ctx)
	assert.ErrorIs(t, err, pipeline.ErrNotConfigured)

	_, err = p.Train(ctx)
	assert.ErrorIs(t, err, pipeline.ErrNotConfigured)
}

func TestFetchWeather_SamplesSatelliteTable(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, table.WriteSatelliteFile(paths.Satellite, table.DefaultDensityColumn, satelliteCells()))

	wx := &stubWeather{}
	p := pipeline.New(pipeline.Config{
		Paths:      paths,
		Weather:    wx,
		SampleRate: 4,
		Logger:     zerolog.Nop(),
	})

	res, err := p.FetchWeather(context.Background())
	require.NoError(t, err)

	// Rows 0 and 4 of six.
	assert.Equal(t, []spatial.Point{{Lat: 40.78, Lon: -73.96}, {Lat: 40.85, Lon: -73.88}}, wx.points)
	assert.Len(t, res.Readings, 2)

	written, _, err := table.ReadWeatherFile(paths.Weather)
	require.NoError(t, err)
	assert.Len(t, written, 2)
}

func TestAlign_DropsIncompleteWeatherRows(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, table.WriteSatelliteFile(paths.Satellite, table.DefaultDensityColumn, satelliteCells()[:1]))
	require.NoError(t, table.WriteGroundFile(paths.Ground, groundReadings()))
	require.NoError(t, os.WriteFile(paths.Weather, []byte(
		"latitude,longitude,current_temp_C,current_wind_speed_m_s,current_wind_direction_deg,current_humidity_percent,timestamp_queried_utc\n"+
			"40.78,-73.96,21,3,180,,\n"), 0o600))

	metrics := pipeline.NewMetricsForTesting()
	p := pipeline.New(pipeline.Config{Paths: paths, Metrics: metrics, Logger: zerolog.Nop()})

	stats, err := p.Align(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.WeatherIn)
	assert.Zero(t, stats.WeatherMatched)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RowsDropped.WithLabelValues(pipeline.StageAlign)), 0)

	master, _, err := table.ReadMasterFile(paths.Master, table.DefaultDensityColumn)
	require.NoError(t, err)
	require.Len(t, master, 1)
	assert.Nil(t, master[0].Temperature)
	assert.Nil(t, master[0].WindSpeed)
}

func TestStage_CancelledContext(t *testing.T) {
	f := newFixture(t, groundstation.Result{Readings: groundReadings()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Run(ctx, pipeline.RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.ground.calls)
}
