// Package aqi turns fused, bias-corrected concentrations into an EPA AQI
// result: per-pollutant time averaging, breakpoint interpolation, dominant
// pollutant selection, and a short "why today" narrative.
package aqi

import (
	"fmt"
	"sort"
	"time"

	"github.com/airwatch-project/airwatch/internal/model"
	"github.com/airwatch-project/airwatch/internal/units"
)

// averagingWindow describes one pollutant's EPA time-averaging rule.
type averagingWindow struct {
	hours        int
	minCoverage  float64 // fraction of `hours` that must be present
	period       model.AveragingPeriod
}

var averagingWindows = map[model.Pollutant]averagingWindow{
	model.O3:   {hours: 8, minCoverage: 0.75, period: model.Averaging8Hour},
	model.CO:   {hours: 8, minCoverage: 0.75, period: model.Averaging8Hour},
	model.PM25: {hours: 24, minCoverage: 0.75, period: model.Averaging24Hour},
	model.PM10: {hours: 24, minCoverage: 0.75, period: model.Averaging24Hour},
	model.NO2:  {hours: 1, minCoverage: 1.0, period: model.Averaging1Hour},
	model.SO2:  {hours: 1, minCoverage: 1.0, period: model.Averaging1Hour},
	model.HCHO: {hours: 1, minCoverage: 1.0, period: model.Averaging1Hour},
}

// averageWindow computes the averaged concentration for one pollutant from
// its current-hour value plus history, applying the EPA completeness rule.
// History is expected sorted descending by hour; history[0] is the most
// recent completed hour, separate from currentValue (this hour, in flight).
func averageWindow(pollutant model.Pollutant, currentValue float64, history []model.HourlyHistoryEntry) (value float64, period model.AveragingPeriod, dataPoints int, insufficient bool) {
	window := averagingWindows[pollutant]
	if window.hours <= 1 {
		return currentValue, model.Averaging1Hour, 1, false
	}

	values := []float64{currentValue}
	for _, entry := range history {
		if len(values) >= window.hours {
			break
		}
		if snap, ok := entry.Pollutants[pollutant]; ok {
			values = append(values, snap.Value)
		}
	}

	required := int(float64(window.hours) * window.minCoverage)
	if len(values) < required {
		return currentValue, model.Averaging1Hour, len(values), true
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), window.period, len(values), false
}

// CalculatePollutantAQI produces the full per-pollutant AQI result for one
// pollutant given its fused current-hour concentration and location
// history. biasCorrected records whether the fusion stage that produced
// currentValue applied bias correction, so callers can persist it
// unchanged alongside the AQI.
func CalculatePollutantAQI(pollutant model.Pollutant, currentValue float64, history []model.HourlyHistoryEntry, biasCorrected bool) (model.PollutantAQI, error) {
	averaged, period, dataPoints, insufficient := averageWindow(pollutant, currentValue, history)

	aqiValue, category, color, bpUsed, err := units.AQIFromConcentration(pollutant, averaged)
	if err != nil {
		return model.PollutantAQI{}, fmt.Errorf("aqi: %s: %w", pollutant, err)
	}

	return model.PollutantAQI{
		Pollutant:          pollutant,
		CurrentHourValue:   currentValue,
		AveragedValue:      averaged,
		AveragingPeriod:    period,
		AQI:                aqiValue,
		Category:           category,
		Color:              color,
		BreakpointUsed:     bpUsed,
		DataPointsUsed:     dataPoints,
		InsufficientForEPA: insufficient,
		BiasCorrected:      biasCorrected,
	}, nil
}

// Calculate builds the full AQIResult for a location from fused
// concentrations and history: per-pollutant AQI, dominant pollutant (max
// AQI, ties broken by model.EPAPollutants order), and a why-today note.
func Calculate(fused map[model.Pollutant]model.FusedConcentration, history []model.HourlyHistoryEntry, weather *model.WeatherContext, now time.Time) (model.AQIResult, error) {
	perPollutant := make(map[model.Pollutant]model.PollutantAQI, len(fused))
	for pollutant, fc := range fused {
		if pollutant == model.HCHO {
			continue // science-only, never drives overall AQI
		}
		result, err := CalculatePollutantAQI(pollutant, fc.Value, history, fc.BiasCorrectionApplied)
		if err != nil {
			continue
		}
		perPollutant[pollutant] = result
	}

	dominant, overall := dominantPollutant(perPollutant)
	if dominant == "" {
		return model.AQIResult{PerPollutant: perPollutant}, nil
	}

	dominantResult := perPollutant[dominant]
	whyToday := explain(dominant, dominantResult, perPollutant, weather)

	return model.AQIResult{
		PerPollutant:      perPollutant,
		OverallAQI:        overall.AQI,
		DominantPollutant: dominant,
		Category:          overall.Category,
		Color:             overall.Color,
		HealthMessage:     healthMessages[overall.Category],
		WhyToday:          whyToday,
	}, nil
}

// dominantPollutant picks the pollutant with the maximum AQI, breaking ties
// using model.EPAPollutants order (PM25 > O3 > PM10 > NO2 > SO2 > CO).
func dominantPollutant(perPollutant map[model.Pollutant]model.PollutantAQI) (model.Pollutant, model.PollutantAQI) {
	var best model.Pollutant
	var bestResult model.PollutantAQI
	found := false

	for _, candidate := range model.EPAPollutants {
		result, ok := perPollutant[candidate]
		if !ok {
			continue
		}
		if !found || result.AQI > bestResult.AQI {
			best = candidate
			bestResult = result
			found = true
		}
	}
	return best, bestResult
}

var healthMessages = map[string]string{
	"Good":                            "Air quality is satisfactory for most people.",
	"Moderate":                        "Unusually sensitive people should consider reducing prolonged outdoor exertion.",
	"Unhealthy for Sensitive Groups":  "Sensitive groups may experience health effects. The general public is less likely to be affected.",
	"Unhealthy":                       "Everyone may experience health effects. Sensitive groups may experience more serious effects.",
	"Very Unhealthy":                  "Health alert for everyone. Serious health effects for everyone.",
	"Hazardous":                       "Emergency conditions. Everyone is more likely to be affected.",
}

// explain builds the "why today" narrative from the dominant pollutant,
// overall AQI, and current weather.
func explain(dominant model.Pollutant, dominantResult model.PollutantAQI, perPollutant map[model.Pollutant]model.PollutantAQI, weather *model.WeatherContext) string {
	var notes []string

	if weather != nil {
		switch {
		case weather.TemperatureC > 30 && dominant == model.O3:
			notes = append(notes, fmt.Sprintf("high temperature (%.0f°C) is accelerating photochemical ozone formation", weather.TemperatureC))
		case weather.TemperatureC > 30:
			notes = append(notes, fmt.Sprintf("high temperature (%.0f°C) increases photochemical reactions", weather.TemperatureC))
		case weather.TemperatureC < 10:
			notes = append(notes, fmt.Sprintf("low temperature (%.0f°C) reduces atmospheric mixing", weather.TemperatureC))
		}

		if weather.WindSpeedMS < 2 {
			notes = append(notes, fmt.Sprintf("low wind speed (%.1f m/s) is trapping pollutants near the surface", weather.WindSpeedMS))
		} else if weather.WindSpeedMS > 8 {
			notes = append(notes, fmt.Sprintf("high wind speed (%.1f m/s) is helping disperse pollutants", weather.WindSpeedMS))
		}

		if weather.HumidityPercent > 80 && (dominant == model.PM25 || dominant == model.PM10) {
			notes = append(notes, fmt.Sprintf("high humidity (%.0f%%) is enhancing secondary particulate formation", weather.HumidityPercent))
		}
	}

	var elevated []string
	for _, p := range sortedPollutants(perPollutant) {
		if perPollutant[p].AQI > 100 {
			elevated = append(elevated, fmt.Sprintf("%s (AQI %d)", p, perPollutant[p].AQI))
		}
	}
	if len(elevated) > 0 {
		notes = append(notes, fmt.Sprintf("elevated levels: %s", joinWithComma(elevated)))
	}

	switch {
	case dominantResult.AQI > 150:
		notes = append(notes, "multiple factors are contributing to unhealthy air quality")
	case dominantResult.AQI > 100:
		notes = append(notes, "weather conditions are moderately affecting air quality")
	default:
		if len(notes) == 0 {
			notes = append(notes, "weather conditions currently support good air quality")
		}
	}

	return joinWithBullet(notes)
}

func sortedPollutants(perPollutant map[model.Pollutant]model.PollutantAQI) []model.Pollutant {
	out := make([]model.Pollutant, 0, len(perPollutant))
	for p := range perPollutant {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinWithComma(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}

func joinWithBullet(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += " • "
		}
		out += item
	}
	return out
}
