// Package table reads and writes the tabular interchange files produced by
// each pipeline stage. Every file has a header row; an empty cell is null.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/auracast/auracast/internal/observation"
)

// DefaultDensityColumn is the header used for the satellite pollutant density.
const DefaultDensityColumn = "NO2_column_density"

// Column names shared across formats.
const (
	ColLatitude      = "latitude"
	ColLongitude     = "longitude"
	ColQualityFlag   = "quality_flag"
	ColTimestampUTC  = "timestamp_utc"
	ColValue         = "pollutant_value"
	ColUnit          = "pollutant_unit"
	ColLocationName  = "location_name"
	ColParameterName = "parameter_name"
	ColTemperature   = "current_temp_C"
	ColWindSpeed     = "current_wind_speed_m_s"
	ColWindDirection = "current_wind_direction_deg"
	ColHumidity      = "current_humidity_percent"
	ColQueriedAt     = "timestamp_queried_utc"
	ColDatetime      = "datetime"
	ColNearestGround = "nearest_ground_value"
	ColDistanceKm    = "distance_km_to_ground"
)

// errMalformed marks a row that could not be parsed; such rows are skipped.
var errMalformed = errors.New("malformed row")

// header maps column names to their position in a record.
type header map[string]int

func readHeader(r *csv.Reader, source string, required ...string) (header, error) {
	names, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s has no header row", observation.ErrSchema, source)
		}
		return nil, fmt.Errorf("read %s header: %w", source, err)
	}

	h := make(header, len(names))
	for i, name := range names {
		h[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range required {
		if _, ok := h[col]; !ok {
			return nil, observation.MissingField(source, col)
		}
	}
	return h, nil
}

func (h header) cell(rec []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isNull(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return true
	}
	return false
}

// float parses a required numeric cell.
func (h header) float(rec []string, col string) (float64, error) {
	s := h.cell(rec, col)
	if isNull(s) {
		return 0, fmt.Errorf("%w: %s is empty", errMalformed, col)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s=%q", errMalformed, col, s)
	}
	return v, nil
}

// optFloat parses an optional numeric cell; unparseable values read as null.
func (h header) optFloat(rec []string, col string) *float64 {
	v, err := h.float(rec, col)
	if err != nil {
		return nil
	}
	return &v
}

// timestamp parses a required timestamp cell. Naive timestamps are read as UTC.
func (h header) timestamp(rec []string, col string) (time.Time, error) {
	s := h.cell(rec, col)
	if isNull(s) {
		return time.Time{}, fmt.Errorf("%w: %s is empty", errMalformed, col)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s=%q", errMalformed, col, s)
}

func (h header) optTime(rec []string, col string) *time.Time {
	t, err := h.timestamp(rec, col)
	if err != nil {
		return nil
	}
	return &t
}

func (h header) coordinates(rec []string) (float64, float64, error) {
	lat, err := h.float(rec, ColLatitude)
	if err != nil {
		return 0, 0, err
	}
	lon, err := h.float(rec, ColLongitude)
	if err != nil {
		return 0, 0, err
	}
	if !observation.ValidCoordinates(lat, lon) {
		return 0, 0, fmt.Errorf("%w: coordinates out of range (%v, %v)", errMalformed, lat, lon)
	}
	return lat, lon, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatOptTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// openFile opens path for reading, mapping a missing file to ErrFileNotFound.
func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, observation.MissingFile(path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// createFile creates path and any missing parent directories.
func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return cr
}

// readRows calls parse for every data row. Rows that fail to parse are
// counted and skipped; I/O errors abort.
func readRows(cr *csv.Reader, parse func(rec []string) error) (int, error) {
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return skipped, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return skipped, err
		}
		if err := parse(rec); err != nil {
			if errors.Is(err, errMalformed) {
				skipped++
				continue
			}
			return skipped, err
		}
	}
}

func writeAll(w io.Writer, head []string, rows func(emit func([]string) error) error) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(head); err != nil {
		return err
	}
	if err := rows(cw.Write); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return write(f)
}
