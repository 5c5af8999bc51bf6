package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auracast/auracast/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "processed", "master.csv"), cfg.MasterFile)
	assert.Equal(t, filepath.Join("data", "model", "model.json"), cfg.ModelFile)
	assert.Equal(t, "NO2_column_density", cfg.DensityColumn)
	assert.Equal(t, 28.7041, cfg.OpenAQLat)
	assert.Equal(t, 77.1025, cfg.OpenAQLon)
	assert.Equal(t, 25000, cfg.OpenAQRadiusMeters)
	assert.Equal(t, 2, cfg.OpenAQParameterID)
	assert.Equal(t, 1000, cfg.OpenAQLimit)
	assert.Equal(t, 5000, cfg.WeatherSampleRate)
	assert.Equal(t, time.Second, cfg.WeatherRequestDelay)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 10, cfg.ValidationRows)
	assert.Equal(t, config.ModelStoreFile, cfg.ModelStore)
	assert.Equal(t, "aligned-observations", cfg.KafkaTopic)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.OTelEnabled)
	assert.Zero(t, cfg.WorkerInterval)
	assert.Equal(t, 30*time.Minute, cfg.WorkerRunTimeout)
}

func TestFromEnv_CustomEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/auracast")
	t.Setenv("MODEL_FILE", "/models/current.json")
	t.Setenv("OPENAQ_COORDINATES", "40.7128, -74.0060")
	t.Setenv("WEATHER_SAMPLE_RATE", "10")
	t.Setenv("WEATHER_REQUEST_DELAY", "250ms")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MODEL_STORE", "postgres")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("WORKER_INTERVAL", "6h")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv/auracast", "raw", "satellite_grid.json"), cfg.SatelliteGridFile)
	assert.Equal(t, "/models/current.json", cfg.ModelFile)
	assert.Equal(t, 40.7128, cfg.OpenAQLat)
	assert.Equal(t, -74.006, cfg.OpenAQLon)
	assert.Equal(t, 10, cfg.WeatherSampleRate)
	assert.Equal(t, 250*time.Millisecond, cfg.WeatherRequestDelay)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, config.ModelStorePostgres, cfg.ModelStore)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.True(t, cfg.OTelEnabled)
	assert.Equal(t, 6*time.Hour, cfg.WorkerInterval)
}

func TestFromEnv_InvalidValues(t *testing.T) {
	t.Setenv("WEATHER_SAMPLE_RATE", "often")
	t.Setenv("HTTP_TIMEOUT", "ten")
	t.Setenv("OPENAQ_COORDINATES", "north")

	_, err := config.FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEATHER_SAMPLE_RATE")
	assert.Contains(t, err.Error(), "HTTP_TIMEOUT")
	assert.Contains(t, err.Error(), "OPENAQ_COORDINATES")
}

func TestFromEnv_OutOfRange(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"WEATHER_SAMPLE_RATE", "0"},
		{"OPENAQ_RADIUS_METERS", "-5"},
		{"VALIDATION_ROWS", "0"},
		{"MODEL_STORE", "s3"},
		{"WEATHER_REQUEST_DELAY", "-1s"},
		{"WORKER_INTERVAL", "-1h"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VALIDATION_ROWS=25\n"), 0o600))
	t.Chdir(dir)
	// Registers a restore of VALIDATION_ROWS after godotenv sets it.
	t.Setenv("VALIDATION_ROWS", "")
	require.NoError(t, os.Unsetenv("VALIDATION_ROWS"))

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.ValidationRows)
}

func TestLoad_WithoutDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := config.Load()
	assert.NoError(t, err)
}
