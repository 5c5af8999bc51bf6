// Package config loads AuraCast settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Model store backends.
const (
	ModelStoreFile     = "file"
	ModelStorePostgres = "postgres"
)

// Config holds all pipeline, API and worker settings.
type Config struct {
	DataDir           string
	SatelliteGridFile string
	SatelliteFile     string
	GroundFile        string
	WeatherFile       string
	MasterFile        string
	ModelFile         string
	DensityColumn     string

	OpenAQAPIKey       string
	OpenAQBaseURL      string
	OpenAQLat          float64
	OpenAQLon          float64
	OpenAQRadiusMeters int
	OpenAQParameterID  int
	OpenAQLimit        int

	OpenWeatherAPIKey   string
	OpenWeatherBaseURL  string
	WeatherSampleRate   int
	WeatherRequestDelay time.Duration

	HTTPTimeout time.Duration

	Port           string
	Env            string
	LogLevel       zerolog.Level
	ValidationRows int

	ModelStore string

	KafkaBrokers []string
	KafkaTopic   string

	PubSubProjectID    string
	PubSubSubscription string

	// WorkerInterval schedules periodic runs in the worker. Zero disables it.
	WorkerInterval   time.Duration
	WorkerRunTimeout time.Duration

	OTelEnabled  bool
	OTLPEndpoint string
}

// Load reads .env from the working directory when present, then the
// environment. Unset variables take their defaults; malformed values are errors.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	p := parser{}

	dataDir := envOrDefault("DATA_DIR", "./data")
	cfg := &Config{
		DataDir:           dataDir,
		SatelliteGridFile: envOrDefault("SATELLITE_GRID_FILE", filepath.Join(dataDir, "raw", "satellite_grid.json")),
		SatelliteFile:     envOrDefault("SATELLITE_FILE", filepath.Join(dataDir, "processed", "satellite.csv")),
		GroundFile:        envOrDefault("GROUND_FILE", filepath.Join(dataDir, "raw", "ground.csv")),
		WeatherFile:       envOrDefault("WEATHER_FILE", filepath.Join(dataDir, "processed", "weather.csv")),
		MasterFile:        envOrDefault("MASTER_FILE", filepath.Join(dataDir, "processed", "master.csv")),
		ModelFile:         envOrDefault("MODEL_FILE", filepath.Join(dataDir, "model", "model.json")),
		DensityColumn:     envOrDefault("DENSITY_COLUMN", "NO2_column_density"),

		OpenAQAPIKey:       os.Getenv("OPENAQ_API_KEY"),
		OpenAQBaseURL:      envOrDefault("OPENAQ_BASE_URL", "https://api.openaq.org/v3"),
		OpenAQRadiusMeters: p.int("OPENAQ_RADIUS_METERS", 25000),
		OpenAQParameterID:  p.int("OPENAQ_PARAMETER_ID", 2),
		OpenAQLimit:        p.int("OPENAQ_LIMIT", 1000),

		OpenWeatherAPIKey:   os.Getenv("OPENWEATHER_API_KEY"),
		OpenWeatherBaseURL:  envOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
		WeatherSampleRate:   p.int("WEATHER_SAMPLE_RATE", 5000),
		WeatherRequestDelay: p.duration("WEATHER_REQUEST_DELAY", time.Second),

		HTTPTimeout: p.duration("HTTP_TIMEOUT", 10*time.Second),

		Port:           envOrDefault("APP_PORT", "8080"),
		Env:            envOrDefault("APP_ENV", "development"),
		ValidationRows: p.int("VALIDATION_ROWS", 10),

		ModelStore: strings.ToLower(envOrDefault("MODEL_STORE", ModelStoreFile)),

		KafkaBrokers: parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "aligned-observations"),

		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: envOrDefault("PUBSUB_SUBSCRIPTION", "auracast-pipeline-jobs"),

		WorkerInterval:   p.duration("WORKER_INTERVAL", 0),
		WorkerRunTimeout: p.duration("WORKER_RUN_TIMEOUT", 30*time.Minute),

		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint: envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	cfg.OpenAQLat, cfg.OpenAQLon = p.coordinates("OPENAQ_COORDINATES", 28.7041, 77.1025)
	cfg.LogLevel = p.level("LOG_LEVEL", zerolog.InfoLevel)

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and combinations.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAQRadiusMeters <= 0 {
		errs = append(errs, errors.New("OPENAQ_RADIUS_METERS must be positive"))
	}
	if c.OpenAQLimit <= 0 {
		errs = append(errs, errors.New("OPENAQ_LIMIT must be positive"))
	}
	if c.WeatherSampleRate <= 0 {
		errs = append(errs, errors.New("WEATHER_SAMPLE_RATE must be positive"))
	}
	if c.WeatherRequestDelay < 0 {
		errs = append(errs, errors.New("WEATHER_REQUEST_DELAY must not be negative"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}
	if c.WorkerInterval < 0 {
		errs = append(errs, errors.New("WORKER_INTERVAL must not be negative"))
	}
	if c.WorkerRunTimeout < 0 {
		errs = append(errs, errors.New("WORKER_RUN_TIMEOUT must not be negative"))
	}
	if c.ValidationRows <= 0 {
		errs = append(errs, errors.New("VALIDATION_ROWS must be positive"))
	}
	if c.DensityColumn == "" {
		errs = append(errs, errors.New("DENSITY_COLUMN must not be empty"))
	}
	if c.ModelStore != ModelStoreFile && c.ModelStore != ModelStorePostgres {
		errs = append(errs, fmt.Errorf("MODEL_STORE must be %q or %q, got %q", ModelStoreFile, ModelStorePostgres, c.ModelStore))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether aligned rows should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %q is not an integer", key, s))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %q is not a duration", key, s))
		return def
	}
	return d
}

func (p *parser) coordinates(key string, defLat, defLon float64) (float64, float64) {
	s := os.Getenv(key)
	if s == "" {
		return defLat, defLon
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: want \"lat,lon\", got %q", key, s))
		return defLat, defLon
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %q is not a valid coordinate pair", key, s))
		return defLat, defLon
	}
	return lat, lon
}

func (p *parser) level(key string, def zerolog.Level) zerolog.Level {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return lvl
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
