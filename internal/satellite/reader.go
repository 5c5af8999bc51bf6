// Package satellite flattens gridded satellite products into per-cell
// observations.
package satellite

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/auracast/auracast/internal/observation"
)

// Default variable paths of a tropospheric NO2 level-2 product.
const (
	DefaultDensityPath   = "/product/vertical_column_troposphere"
	DefaultLatitudePath  = "/geolocation/latitude"
	DefaultLongitudePath = "/geolocation/longitude"
	DefaultQualityPath   = "/product/main_data_quality_flag"

	// DefaultFillValue marks an unobserved density cell.
	DefaultFillValue = -9999.0

	// ScanTimeAttribute holds the RFC 3339 start of the product's scan.
	ScanTimeAttribute = "time_coverage_start"
)

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	Logger        zerolog.Logger
	DensityPath   string
	LatitudePath  string
	LongitudePath string
	QualityPath   string

	// FillValue marks unobserved density cells. Nil uses DefaultFillValue.
	FillValue *float64
}

// DefaultReaderConfig returns the configuration for a standard NO2 product.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		Logger:        zerolog.Nop(),
		DensityPath:   DefaultDensityPath,
		LatitudePath:  DefaultLatitudePath,
		LongitudePath: DefaultLongitudePath,
		QualityPath:   DefaultQualityPath,
		FillValue:     observation.Float(DefaultFillValue),
	}
}

// Reader extracts observations from a Dataset.
type Reader struct {
	cfg ReaderConfig
}

// NewReader creates a Reader, filling unset paths with the defaults.
func NewReader(cfg ReaderConfig) *Reader {
	def := DefaultReaderConfig()
	if cfg.DensityPath == "" {
		cfg.DensityPath = def.DensityPath
	}
	if cfg.LatitudePath == "" {
		cfg.LatitudePath = def.LatitudePath
	}
	if cfg.LongitudePath == "" {
		cfg.LongitudePath = def.LongitudePath
	}
	if cfg.QualityPath == "" {
		cfg.QualityPath = def.QualityPath
	}
	if cfg.FillValue == nil {
		cfg.FillValue = def.FillValue
	}
	return &Reader{cfg: cfg}
}

// ReadFile opens the JSON grid export at path and reads it.
func (r *Reader) ReadFile(path string) ([]observation.Satellite, error) {
	g, err := OpenGrid(path)
	if err != nil {
		return nil, err
	}
	return r.Read(g)
}

// Read flattens the density, latitude and longitude arrays in row-major order
// and returns one observation per cell with an observed density and valid
// coordinates. The quality flag is carried through when the product has one.
func (r *Reader) Read(ds Dataset) ([]observation.Satellite, error) {
	density, err := r.required(ds, r.cfg.DensityPath)
	if err != nil {
		return nil, err
	}
	lat, err := r.required(ds, r.cfg.LatitudePath)
	if err != nil {
		return nil, err
	}
	lon, err := r.required(ds, r.cfg.LongitudePath)
	if err != nil {
		return nil, err
	}

	quality, err := ds.Variable(r.cfg.QualityPath)
	hasQuality := err == nil
	if err != nil && !errors.Is(err, ErrVariableNotFound) {
		return nil, fmt.Errorf("read %s: %w", r.cfg.QualityPath, err)
	}

	r.cfg.Logger.Info().
		Ints("density_shape", density.Shape).
		Ints("latitude_shape", lat.Shape).
		Ints("longitude_shape", lon.Shape).
		Bool("quality_flag", hasQuality).
		Msg("satellite grid loaded")
	if !hasQuality {
		r.cfg.Logger.Warn().Str("path", r.cfg.QualityPath).Msg("quality flag array absent")
	}

	n := len(density.Data)
	if len(lat.Data) != n || len(lon.Data) != n {
		return nil, fmt.Errorf("%w: grid sizes differ (density %d, latitude %d, longitude %d)",
			observation.ErrSchema, n, len(lat.Data), len(lon.Data))
	}
	if hasQuality && len(quality.Data) != n {
		r.cfg.Logger.Warn().
			Int("expected", n).
			Int("actual", len(quality.Data)).
			Msg("quality flag size differs from grid, ignoring it")
		hasQuality = false
	}

	scanTime := r.scanTime(ds)
	fill := *r.cfg.FillValue

	out := make([]observation.Satellite, 0, n)
	dropped := 0
	for i := 0; i < n; i++ {
		d := density.Data[i]
		if math.IsNaN(d) || d == fill {
			dropped++
			continue
		}
		la, lo := lat.Data[i], lon.Data[i]
		if math.IsNaN(la) || math.IsNaN(lo) || !observation.ValidCoordinates(la, lo) {
			dropped++
			continue
		}

		s := observation.Satellite{Lat: la, Lon: lo, Density: d, ObservedAt: scanTime}
		if hasQuality && !math.IsNaN(quality.Data[i]) {
			s.QualityFlag = observation.Float(quality.Data[i])
		}
		out = append(out, s)
	}

	r.cfg.Logger.Info().
		Int("cells", n).
		Int("valid", len(out)).
		Int("dropped", dropped).
		Msg("satellite grid flattened")

	return out, nil
}

func (r *Reader) required(ds Dataset, path string) (Variable, error) {
	v, err := ds.Variable(path)
	if err != nil {
		if errors.Is(err, ErrVariableNotFound) {
			return Variable{}, observation.MissingField("satellite product", path)
		}
		return Variable{}, fmt.Errorf("read %s: %w", path, err)
	}
	return v, nil
}

func (r *Reader) scanTime(ds Dataset) *time.Time {
	raw, ok := ds.Attribute(ScanTimeAttribute)
	if !ok || raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		r.cfg.Logger.Warn().Str("value", raw).Msg("unparseable scan time attribute")
		return nil
	}
	t = t.UTC()
	return &t
}
