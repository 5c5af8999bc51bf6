// Package aqi maps pollutant values onto categorical health bands.
//
// Two scales are kept deliberately separate. The index scale classifies an
// already-computed AQI value (0-500) for alerts. The PM2.5 scale classifies a
// raw concentration in µg/m³, as produced by the prediction model. A value of
// 40 means different things on each scale.
package aqi

import "fmt"

// Level is a named AQI band.
type Level string

const (
	LevelGood               Level = "Good"
	LevelModerate           Level = "Moderate"
	LevelUnhealthySensitive Level = "Unhealthy for Sensitive Groups"
	LevelUnhealthy          Level = "Unhealthy"
	LevelUnhealthyOrWorse   Level = "Unhealthy or Worse"
	LevelHazardous          Level = "Hazardous"
)

// Color is the severity color associated with a band.
type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorOrange Color = "orange"
	ColorRed    Color = "red"
	ColorPurple Color = "purple"
)

// Category is the PM2.5 classification result.
type Category struct {
	Level Level `json:"level"`
	Color Color `json:"color"`
}

// ClassifyPM25 classifies a PM2.5 concentration in µg/m³. Upper bounds are
// inclusive: 12.0 is Good, 12.01 is Moderate.
func ClassifyPM25(pm25 float64) Category {
	switch {
	case pm25 <= 12.0:
		return Category{Level: LevelGood, Color: ColorGreen}
	case pm25 <= 35.4:
		return Category{Level: LevelModerate, Color: ColorYellow}
	case pm25 <= 55.4:
		return Category{Level: LevelUnhealthySensitive, Color: ColorOrange}
	case pm25 <= 150.4:
		return Category{Level: LevelUnhealthy, Color: ColorRed}
	default:
		return Category{Level: LevelHazardous, Color: ColorPurple}
	}
}

// Alert is the AQI index classification result with guidance text.
type Alert struct {
	Status Level  `json:"status"`
	Color  Color  `json:"color"`
	Title  string `json:"title"`
	Action string `json:"action"`
}

// ClassifyIndex classifies an AQI index value. 50 and 100 are inclusive upper
// bounds; 150 itself already belongs to the top band.
func ClassifyIndex(aqi float64) Alert {
	switch {
	case aqi <= 50:
		return Alert{
			Status: LevelGood,
			Color:  ColorGreen,
			Title:  "Air Quality is Good. Enjoy the outdoors!",
			Action: "No restrictions needed.",
		}
	case aqi <= 100:
		return Alert{
			Status: LevelModerate,
			Color:  ColorYellow,
			Title:  "Air Quality is Moderate.",
			Action: "Unusually sensitive people should consider limiting long outdoor time.",
		}
	case aqi < 150:
		return Alert{
			Status: LevelUnhealthySensitive,
			Color:  ColorOrange,
			Title:  fmt.Sprintf("AQI Alert: %s. Air is UNHEALTHY for sensitive groups.", formatIndex(aqi)),
			Action: "Limit prolonged or heavy exertion outdoors.",
		}
	default:
		return Alert{
			Status: LevelUnhealthyOrWorse,
			Color:  ColorRed,
			Title:  fmt.Sprintf("WARNING: AQI %s is high. Health risk is elevated.", formatIndex(aqi)),
			Action: "Everyone should avoid outdoor exertion.",
		}
	}
}

func formatIndex(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}
