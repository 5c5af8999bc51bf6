package table

import (
	"io"

	"github.com/auracast/auracast/internal/observation"
)

var groundHeader = []string{
	ColTimestampUTC,
	ColValue,
	ColUnit,
	ColLatitude,
	ColLongitude,
	ColLocationName,
	ColParameterName,
}

// ReadGround parses a ground-station file. Rows with invalid coordinates or
// no pollutant value are skipped and counted.
func ReadGround(r io.Reader) ([]observation.Ground, int, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "ground", ColLatitude, ColLongitude, ColValue)
	if err != nil {
		return nil, 0, err
	}

	var out []observation.Ground
	skipped, err := readRows(cr, func(rec []string) error {
		lat, lon, err := h.coordinates(rec)
		if err != nil {
			return err
		}
		value, err := h.float(rec, ColValue)
		if err != nil {
			return err
		}
		out = append(out, observation.Ground{
			Lat:           lat,
			Lon:           lon,
			Value:         value,
			Unit:          h.cell(rec, ColUnit),
			LocationName:  h.cell(rec, ColLocationName),
			ParameterName: h.cell(rec, ColParameterName),
			MeasuredAt:    h.optTime(rec, ColTimestampUTC),
		})
		return nil
	})
	return out, skipped, err
}

// WriteGround writes ground-station rows.
func WriteGround(w io.Writer, rows []observation.Ground) error {
	return writeAll(w, groundHeader, func(emit func([]string) error) error {
		for _, g := range rows {
			if err := emit([]string{
				formatOptTime(g.MeasuredAt),
				formatFloat(g.Value),
				g.Unit,
				formatFloat(g.Lat),
				formatFloat(g.Lon),
				g.LocationName,
				g.ParameterName,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadGroundFile opens path and parses it with ReadGround.
func ReadGroundFile(path string) ([]observation.Ground, int, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadGround(f)
}

// WriteGroundFile writes rows to path, creating parent directories.
func WriteGroundFile(path string, rows []observation.Ground) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteGround(w, rows)
	})
}
