package table

import (
	"io"

	"github.com/auracast/auracast/internal/observation"
)

func masterHeader(densityColumn string) []string {
	return []string{
		ColDatetime,
		ColLatitude,
		ColLongitude,
		densityColumn,
		ColTemperature,
		ColWindSpeed,
		ColWindDirection,
		ColNearestGround,
		ColDistanceKm,
	}
}

// ReadMaster parses an aligned master table. Every value column may be null;
// only rows with unusable coordinates are skipped.
func ReadMaster(r io.Reader, densityColumn string) ([]observation.Aligned, int, error) {
	if densityColumn == "" {
		densityColumn = DefaultDensityColumn
	}
	cr := newReader(r)
	h, err := readHeader(cr, "master", ColLatitude, ColLongitude, densityColumn,
		ColTemperature, ColWindSpeed, ColWindDirection, ColNearestGround, ColDistanceKm)
	if err != nil {
		return nil, 0, err
	}

	var out []observation.Aligned
	skipped, err := readRows(cr, func(rec []string) error {
		lat, err := h.float(rec, ColLatitude)
		if err != nil {
			return err
		}
		lon, err := h.float(rec, ColLongitude)
		if err != nil {
			return err
		}
		out = append(out, observation.Aligned{
			Datetime:           h.optTime(rec, ColDatetime),
			Lat:                lat,
			Lon:                lon,
			Density:            h.optFloat(rec, densityColumn),
			Temperature:        h.optFloat(rec, ColTemperature),
			WindSpeed:          h.optFloat(rec, ColWindSpeed),
			WindDirection:      h.optFloat(rec, ColWindDirection),
			NearestGroundValue: h.optFloat(rec, ColNearestGround),
			DistanceKm:         h.optFloat(rec, ColDistanceKm),
		})
		return nil
	})
	return out, skipped, err
}

// WriteMaster writes aligned rows in master-table order.
func WriteMaster(w io.Writer, densityColumn string, rows []observation.Aligned) error {
	if densityColumn == "" {
		densityColumn = DefaultDensityColumn
	}
	return writeAll(w, masterHeader(densityColumn), func(emit func([]string) error) error {
		for _, a := range rows {
			if err := emit([]string{
				formatOptTime(a.Datetime),
				formatFloat(a.Lat),
				formatFloat(a.Lon),
				formatOptFloat(a.Density),
				formatOptFloat(a.Temperature),
				formatOptFloat(a.WindSpeed),
				formatOptFloat(a.WindDirection),
				formatOptFloat(a.NearestGroundValue),
				formatOptFloat(a.DistanceKm),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadMasterFile opens path and parses it with ReadMaster.
func ReadMasterFile(path, densityColumn string) ([]observation.Aligned, int, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadMaster(f, densityColumn)
}

// WriteMasterFile writes rows to path, creating parent directories.
func WriteMasterFile(path, densityColumn string, rows []observation.Aligned) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteMaster(w, densityColumn, rows)
	})
}
