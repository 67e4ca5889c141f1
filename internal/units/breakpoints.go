package units

import (
	"fmt"
	"math"

	"github.com/airwatch-project/airwatch/internal/model"
)

// Breakpoint is one row of an EPA AQI table: the concentration range
// [ConcLo, ConcHi] (in the pollutant's canonical unit) maps to the AQI
// range [AQILo, AQIHi].
type Breakpoint struct {
	ConcLo, ConcHi float64
	AQILo, AQIHi   int
	Category       string
}

// The PM2.5 Good/Moderate boundary is 9.0/9.1 ug/m3, the 2024 EPA table.
var breakpointTables = map[model.Pollutant][]Breakpoint{
	model.O3: {
		{0.000, 0.054, 0, 50, "Good"},
		{0.055, 0.070, 51, 100, "Moderate"},
		{0.071, 0.085, 101, 150, "Unhealthy for Sensitive Groups"},
		{0.086, 0.105, 151, 200, "Unhealthy"},
		{0.106, 0.200, 201, 300, "Very Unhealthy"},
		{0.201, 0.604, 301, 500, "Hazardous"},
	},
	model.NO2: {
		{0, 53, 0, 50, "Good"},
		{54, 100, 51, 100, "Moderate"},
		{101, 360, 101, 150, "Unhealthy for Sensitive Groups"},
		{361, 649, 151, 200, "Unhealthy"},
		{650, 1249, 201, 300, "Very Unhealthy"},
		{1250, 2049, 301, 500, "Hazardous"},
	},
	model.CO: {
		{0.0, 4.4, 0, 50, "Good"},
		{4.5, 9.4, 51, 100, "Moderate"},
		{9.5, 12.4, 101, 150, "Unhealthy for Sensitive Groups"},
		{12.5, 15.4, 151, 200, "Unhealthy"},
		{15.5, 30.4, 201, 300, "Very Unhealthy"},
		{30.5, 50.4, 301, 500, "Hazardous"},
	},
	model.SO2: {
		{0, 35, 0, 50, "Good"},
		{36, 75, 51, 100, "Moderate"},
		{76, 185, 101, 150, "Unhealthy for Sensitive Groups"},
		{186, 304, 151, 200, "Unhealthy"},
		{305, 604, 201, 300, "Very Unhealthy"},
		{605, 1004, 301, 500, "Hazardous"},
	},
	model.PM25: {
		{0.0, 9.0, 0, 50, "Good"},
		{9.1, 35.4, 51, 100, "Moderate"},
		{35.5, 55.4, 101, 150, "Unhealthy for Sensitive Groups"},
		{55.5, 125.4, 151, 200, "Unhealthy"},
		{125.5, 225.4, 201, 300, "Very Unhealthy"},
		{225.5, 325.4, 301, 500, "Hazardous"},
	},
	model.PM10: {
		{0, 54, 0, 50, "Good"},
		{55, 154, 51, 100, "Moderate"},
		{155, 254, 101, 150, "Unhealthy for Sensitive Groups"},
		{255, 354, 151, 200, "Unhealthy"},
		{355, 424, 201, 300, "Very Unhealthy"},
		{425, 604, 301, 500, "Hazardous"},
	},
}

// Colors maps an EPA category to its standard hex color.
var Colors = map[string]string{
	"Good":                            "#00E400",
	"Moderate":                        "#FFFF00",
	"Unhealthy for Sensitive Groups":  "#FF7E00",
	"Unhealthy":                       "#FF0000",
	"Very Unhealthy":                  "#8F3F97",
	"Hazardous":                       "#7E0023",
}

// HealthMessages maps an EPA category to its AirNow-style message.
var HealthMessages = map[string]string{
	"Good":                           "Air quality is satisfactory for most people.",
	"Moderate":                       "Unusually sensitive people should consider reducing prolonged outdoor exertion.",
	"Unhealthy for Sensitive Groups": "Sensitive groups may experience health effects. The general public is less likely to be affected.",
	"Unhealthy":                      "Everyone may experience health effects. Sensitive groups may experience more serious effects.",
	"Very Unhealthy":                 "Health alert for everyone. Serious health effects for everyone.",
	"Hazardous":                      "Emergency conditions. Everyone is more likely to be affected.",
}

// Breakpoints returns the pollutant's breakpoint table, using the NO2
// table as a proxy for HCHO since HCHO has no official EPA AQI (the
// calculator marks HCHO results as science-only upstream of this call).
func Breakpoints(p model.Pollutant) ([]Breakpoint, error) {
	lookup := p
	if p == model.HCHO {
		lookup = model.NO2
	}
	bp, ok := breakpointTables[lookup]
	if !ok {
		return nil, fmt.Errorf("units: no EPA breakpoints for %s", p)
	}
	return bp, nil
}

// AQIFromConcentration interpolates the EPA AQI for concentration (in the
// pollutant's canonical unit), returning the AQI, the matched category, its
// color and a human-readable breakpoint label. Concentrations above the top
// breakpoint map to AQI 500 / "Hazardous" with breakpoint label
// "above_scale".
func AQIFromConcentration(p model.Pollutant, concentration float64) (aqi int, category, color, breakpointUsed string, err error) {
	table, err := Breakpoints(p)
	if err != nil {
		return 0, "", "", "", err
	}

	for i, bp := range table {
		// A value between this segment's ConcHi and the next segment's
		// ConcLo belongs to this segment, capped at its AQIHi.
		inGap := i+1 < len(table) && concentration > bp.ConcHi && concentration < table[i+1].ConcLo
		if concentration >= bp.ConcLo && (concentration <= bp.ConcHi || inGap) {
			var value float64
			if bp.ConcHi == bp.ConcLo {
				value = float64(bp.AQILo)
			} else {
				value = (float64(bp.AQIHi-bp.AQILo))/(bp.ConcHi-bp.ConcLo)*(concentration-bp.ConcLo) + float64(bp.AQILo)
			}
			if value > float64(bp.AQIHi) {
				value = float64(bp.AQIHi)
			}
			aqi = int(math.Round(value))
			return aqi, bp.Category, Colors[bp.Category], fmt.Sprintf("%g-%g", bp.ConcLo, bp.ConcHi), nil
		}
	}

	return 500, "Hazardous", Colors["Hazardous"], "above_scale", nil
}

// InverseBreakpoint recovers a plausible concentration (canonical unit) for
// a reported AQI value, used by ground adapters that only report AQI. The
// concentration is linearly interpolated within the segment whose AQI range
// contains aqi, the inverse of AQIFromConcentration; an AQI of 500 or more
// returns the top segment's ConcHi.
func InverseBreakpoint(p model.Pollutant, aqi int) (float64, error) {
	table, err := Breakpoints(p)
	if err != nil {
		return 0, err
	}

	if aqi >= 500 {
		last := table[len(table)-1]
		return last.ConcHi, nil
	}

	for _, bp := range table {
		if aqi >= bp.AQILo && aqi <= bp.AQIHi {
			if bp.AQIHi == bp.AQILo {
				return bp.ConcLo, nil
			}
			frac := float64(aqi-bp.AQILo) / float64(bp.AQIHi-bp.AQILo)
			return bp.ConcLo + frac*(bp.ConcHi-bp.ConcLo), nil
		}
	}

	return 0, fmt.Errorf("units: AQI %d out of range for %s", aqi, p)
}
