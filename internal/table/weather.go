package table

import (
	"io"
	"time"

	"github.com/auracast/auracast/internal/observation"
)

var weatherHeader = []string{
	ColLatitude,
	ColLongitude,
	ColTemperature,
	ColWindSpeed,
	ColWindDirection,
	ColHumidity,
	ColQueriedAt,
}

// ReadWeather parses a weather file. Every field is required; rows missing
// any of them are skipped and counted.
func ReadWeather(r io.Reader) ([]observation.Weather, int, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "weather", ColLatitude, ColLongitude, ColTemperature, ColWindSpeed, ColWindDirection, ColHumidity, ColQueriedAt)
	if err != nil {
		return nil, 0, err
	}

	var out []observation.Weather
	skipped, err := readRows(cr, func(rec []string) error {
		lat, lon, err := h.coordinates(rec)
		if err != nil {
			return err
		}
		temp, err := h.float(rec, ColTemperature)
		if err != nil {
			return err
		}
		speed, err := h.float(rec, ColWindSpeed)
		if err != nil {
			return err
		}
		dir, err := h.float(rec, ColWindDirection)
		if err != nil {
			return err
		}
		hum, err := h.float(rec, ColHumidity)
		if err != nil {
			return err
		}
		queried, err := h.timestamp(rec, ColQueriedAt)
		if err != nil {
			return err
		}
		out = append(out, observation.Weather{
			Lat:           lat,
			Lon:           lon,
			Temperature:   temp,
			WindSpeed:     speed,
			WindDirection: dir,
			Humidity:      hum,
			QueriedAt:     queried,
		})
		return nil
	})
	return out, skipped, err
}

// WriteWeather writes weather rows.
func WriteWeather(w io.Writer, rows []observation.Weather) error {
	return writeAll(w, weatherHeader, func(emit func([]string) error) error {
		for _, r := range rows {
			queried := ""
			if !r.QueriedAt.IsZero() {
				queried = r.QueriedAt.UTC().Format(time.RFC3339Nano)
			}
			if err := emit([]string{
				formatFloat(r.Lat),
				formatFloat(r.Lon),
				formatFloat(r.Temperature),
				formatFloat(r.WindSpeed),
				formatFloat(r.WindDirection),
				formatFloat(r.Humidity),
				queried,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadWeatherFile opens path and parses it with ReadWeather.
func ReadWeatherFile(path string) ([]observation.Weather, int, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadWeather(f)
}

// WriteWeatherFile writes rows to path, creating parent directories.
func WriteWeatherFile(path string, rows []observation.Weather) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteWeather(w, rows)
	})
}
