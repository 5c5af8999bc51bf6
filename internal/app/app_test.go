package app_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auracast/auracast/internal/app"
	"github.com/auracast/auracast/internal/config"
	"github.com/auracast/auracast/internal/model"
	"github.com/auracast/auracast/internal/resilience"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:             dir,
		SatelliteGridFile:   filepath.Join(dir, "raw", "grid.json"),
		SatelliteFile:       filepath.Join(dir, "processed", "satellite.csv"),
		GroundFile:          filepath.Join(dir, "raw", "ground.csv"),
		WeatherFile:         filepath.Join(dir, "processed", "weather.csv"),
		MasterFile:          filepath.Join(dir, "processed", "master.csv"),
		ModelFile:           filepath.Join(dir, "model", "model.json"),
		DensityColumn:       "NO2_column_density",
		OpenAQLat:           40.7,
		OpenAQLon:           -73.9,
		OpenAQRadiusMeters:  10000,
		OpenAQParameterID:   2,
		OpenAQLimit:         100,
		WeatherSampleRate:   10,
		WeatherRequestDelay: time.Second,
		HTTPTimeout:         time.Second,
		Env:                 "test",
		LogLevel:            zerolog.InfoLevel,
		ModelStore:          config.ModelStoreFile,
	}
}

func TestPaths(t *testing.T) {
	cfg := testConfig(t)
	paths := app.Paths(cfg)

	assert.Equal(t, cfg.SatelliteGridFile, paths.SatelliteGrid)
	assert.Equal(t, cfg.MasterFile, paths.Master)
}

func TestGroundQuery(t *testing.T) {
	q := app.GroundQuery(testConfig(t))

	require.NoError(t, q.Validate())
	assert.InDelta(t, 40.7, q.Lat, 0)
	assert.Equal(t, 10000, q.RadiusMeters)
}

func TestOpenModelStore_File(t *testing.T) {
	cfg := testConfig(t)

	store, pool, err := app.OpenModelStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, pool)

	fs, ok := store.(*model.FileStore)
	require.True(t, ok)
	assert.Equal(t, cfg.ModelFile, fs.Path())
}

func TestBuildPipeline(t *testing.T) {
	cfg := testConfig(t)
	reg := prometheus.NewRegistry()
	providers := resilience.NewRegistry()

	p, err := app.BuildPipeline(context.Background(), cfg, app.PipelineOptions{
		Logger:     zerolog.Nop(),
		Registerer: reg,
		Providers:  providers,
	})
	require.NoError(t, err)
	defer p.Close()

	assert.NotNil(t, p.Pipeline)
	assert.Nil(t, p.DB)
	assert.Same(t, providers, p.Providers)

	// Both upstream clients register themselves for health reporting.
	assert.Equal(t, 2, providers.Len())

	count, err := testutil.GatherAndCount(reg, "auracast_training_rows")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBuildPipeline_SkipFetchWithoutInputs(t *testing.T) {
	cfg := testConfig(t)

	p, err := app.BuildPipeline(context.Background(), cfg, app.PipelineOptions{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Align(context.Background())
	assert.Error(t, err)
}

func TestNewLogger_Level(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogLevel = zerolog.WarnLevel

	logger := app.NewLogger(cfg, "auracast-test", "dev")
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}
