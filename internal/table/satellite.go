package table

import (
	"io"

	"github.com/auracast/auracast/internal/observation"
)

// ReadSatellite parses a satellite file. densityColumn names the pollutant
// density header; quality_flag and timestamp_utc are optional. Rows with missing or invalid
// coordinates or density are skipped and counted.
func ReadSatellite(r io.Reader, densityColumn string) ([]observation.Satellite, int, error) {
	if densityColumn == "" {
		densityColumn = DefaultDensityColumn
	}
	cr := newReader(r)
	h, err := readHeader(cr, "satellite", ColLatitude, ColLongitude, densityColumn)
	if err != nil {
		return nil, 0, err
	}

	var out []observation.Satellite
	skipped, err := readRows(cr, func(rec []string) error {
		lat, lon, err := h.coordinates(rec)
		if err != nil {
			return err
		}
		density, err := h.float(rec, densityColumn)
		if err != nil {
			return err
		}
		out = append(out, observation.Satellite{
			Lat:         lat,
			Lon:         lon,
			Density:     density,
			QualityFlag: h.optFloat(rec, ColQualityFlag),
			ObservedAt:  h.optTime(rec, ColTimestampUTC),
		})
		return nil
	})
	return out, skipped, err
}

// WriteSatellite writes satellite rows with the given density header. The
// scan time is written so later stages can stamp aligned rows with it.
func WriteSatellite(w io.Writer, densityColumn string, rows []observation.Satellite) error {
	if densityColumn == "" {
		densityColumn = DefaultDensityColumn
	}
	head := []string{ColLatitude, ColLongitude, densityColumn, ColQualityFlag, ColTimestampUTC}
	return writeAll(w, head, func(emit func([]string) error) error {
		for _, s := range rows {
			if err := emit([]string{
				formatFloat(s.Lat),
				formatFloat(s.Lon),
				formatFloat(s.Density),
				formatOptFloat(s.QualityFlag),
				formatOptTime(s.ObservedAt),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadSatelliteFile opens path and parses it with ReadSatellite.
func ReadSatelliteFile(path, densityColumn string) ([]observation.Satellite, int, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadSatellite(f, densityColumn)
}

// WriteSatelliteFile writes rows to path, creating parent directories.
func WriteSatelliteFile(path, densityColumn string, rows []observation.Satellite) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteSatellite(w, densityColumn, rows)
	})
}
