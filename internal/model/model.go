// Package model holds the shared, strongly-typed records that flow between
// the collection, fusion, AQI and persistence stages. Adapter outputs are
// map<Pollutant, Measurement> instead of free-form dictionaries so that a
// typo in a pollutant name is a compile error, not a silent missing key.
package model

import (
	"fmt"
	"time"
)

// Pollutant enumerates the species this pipeline understands.
type Pollutant string

const (
	PM25 Pollutant = "PM25"
	PM10 Pollutant = "PM10"
	O3   Pollutant = "O3"
	NO2  Pollutant = "NO2"
	SO2  Pollutant = "SO2"
	CO   Pollutant = "CO"
	HCHO Pollutant = "HCHO" // science-only, no EPA AQI
)

// EPAPollutants is the ordered tie-break list used when two pollutants
// produce the same per-pollutant AQI: PM25 > O3 > PM10 > NO2 > SO2 > CO.
var EPAPollutants = []Pollutant{PM25, O3, PM10, NO2, SO2, CO}

// Unit enumerates the concentration units a measurement may carry.
type Unit string

const (
	UnitPPB      Unit = "ppb"
	UnitPPM      Unit = "ppm"
	UnitUGM3     Unit = "ug_m3"
	UnitMolecCM2 Unit = "molecules_cm2"
)

// CanonicalUnit returns the unit every source measurement of a pollutant is
// converted into before fusion, per the internal units table.
func CanonicalUnit(p Pollutant) Unit {
	switch p {
	case PM25, PM10:
		return UnitUGM3
	case O3, CO:
		return UnitPPM
	case NO2, SO2, HCHO:
		return UnitPPB
	default:
		return UnitPPB
	}
}

// Quality tags the trustworthiness of a single raw measurement.
type Quality string

const (
	QualityNASACompliant   Quality = "nasa_compliant"
	QualityGood            Quality = "good"
	QualityModerate        Quality = "moderate"
	QualityInsufficient    Quality = "insufficient"
	QualityFilteredTag     Quality = "filtered"
	QualityInsufficientEPA Quality = "insufficient_for_epa"
)

// SourceID identifies one of the external data providers.
type SourceID string

const (
	SourceGroundA   SourceID = "ground_a"   // US-biased AQI network (AirNow-like)
	SourceGroundB   SourceID = "ground_b"   // global aggregator (WAQI-like)
	SourceSatellite SourceID = "satellite"  // TEMPO-like tile store
	SourceModel     SourceID = "model"      // GEOS-CF-like chemistry model
	SourceWeather   SourceID = "weather"    // Open-Meteo-like weather context
)

// Location is a user-chosen geographic point. LocationID is the stable grid
// key derived by rounding lat/lon to 4 decimals.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// LocationID formats the stable "{lat:.4f}_{lon:.4f}" key used by every
// store keyed on location.
func LocationID(lat, lon float64) string {
	return fmt.Sprintf("%.4f_%.4f", lat, lon)
}

// ID returns the location's stable grid key.
func (l Location) ID() string {
	return LocationID(l.Latitude, l.Longitude)
}

// RawPollutantMeasurement is produced by a source adapter. It never leaves
// the adapter boundary without units, and is never persisted as-is; the
// fusion engine consumes it within the same collection cycle.
type RawPollutantMeasurement struct {
	Pollutant        Pollutant
	Value            float64
	Units            Unit
	SourceTag        SourceID
	Quality          Quality
	UncertaintyHint  float64
	ObservedAt       time.Time
	FilterReason     string // set when Quality == filtered
}

// WeatherContext carries the five weather fields a weather-capable adapter
// (the model or the weather adapter) reports for one observation; Source
// names which adapter supplied it.
type WeatherContext struct {
	TemperatureC    float64
	HumidityPercent float64
	WindSpeedMS     float64
	WindDirectionDeg float64
	WeatherCode     int
	Source          SourceID
}

// FusedConcentration is the weighted, bias-corrected per-pollutant estimate
// fusion produces. Invariant: sum(WeightsUsed) == 1.0 exactly.
type FusedConcentration struct {
	Pollutant            Pollutant
	Value                float64
	Units                Unit
	SourcesUsed          []SourceID
	WeightsUsed          map[SourceID]float64
	BiasCorrectionApplied bool
	Confidence           float64
}

// HourlyPollutantSnapshot is one pollutant's recorded state within an
// HourlyHistoryEntry.
type HourlyPollutantSnapshot struct {
	Value         float64
	Units         Unit
	Source        SourceID
	Quality       Quality
	BiasCorrected bool
}

// HourlyHistoryEntry is one location's recorded state for one hour. The
// store that owns a slice of these keeps it sorted by HourTS descending and
// truncated to 25 entries.
type HourlyHistoryEntry struct {
	HourTS     time.Time
	Pollutants map[Pollutant]HourlyPollutantSnapshot
}

// AveragingPeriod is the EPA time-averaging window applied to a pollutant.
type AveragingPeriod string

const (
	Averaging1Hour  AveragingPeriod = "1h"
	Averaging8Hour  AveragingPeriod = "8h"
	Averaging24Hour AveragingPeriod = "24h"
)

// PollutantAQI is the per-pollutant result of the AQI calculator.
type PollutantAQI struct {
	Pollutant         Pollutant
	CurrentHourValue  float64
	AveragedValue     float64
	AveragingPeriod    AveragingPeriod
	AQI               int
	Category          string
	Color             string
	BreakpointUsed    string
	DataPointsUsed    int
	InsufficientForEPA bool
	BiasCorrected     bool
}

// AQIResult is the overall pipeline output for one location and hour.
type AQIResult struct {
	PerPollutant       map[Pollutant]PollutantAQI
	OverallAQI         int
	DominantPollutant  Pollutant
	Category           string
	Color              string
	HealthMessage      string
	WhyToday           string
}

// ComprehensiveAQIHourlyRow is the flat, persisted row for one (city, hour).
type ComprehensiveAQIHourlyRow struct {
	City              string
	Latitude          float64
	Longitude         float64
	Timestamp         time.Time
	OverallAQI        int
	AQICategory       string
	DominantPollutant Pollutant
	HealthMessage     string
	Pollutants        map[Pollutant]PersistedPollutant
	Weather           *WeatherContext
	WhyToday          string
}

// PersistedPollutant is the (concentration, aqi, bias_corrected) triple
// stored per EPA pollutant.
type PersistedPollutant struct {
	Concentration *float64
	AQI           *int
	BiasCorrected bool
}

// DailyTrendRow is the per-location, per-date rollup.
type DailyTrendRow struct {
	City                string
	Latitude            float64
	Longitude           float64
	Date                time.Time
	AverageAQI          float64
	AverageCategory     string
	DominantPollutant   Pollutant
	AveragePollutants   map[Pollutant]float64
	AveragePollutantAQI map[Pollutant]float64
	AverageWeather      WeatherContext
	Completeness        float64 // hourly points used / 24
}

// PriorityEntry ranks a candidate location for the next collection tick.
type PriorityEntry struct {
	LocationID      string
	City            string
	Latitude        float64
	Longitude       float64
	PriorityScore   float64
	LastCollected   time.Time
	AlertUserCount  int
	SearchCount     int
	UserDemandBoost float64
}
