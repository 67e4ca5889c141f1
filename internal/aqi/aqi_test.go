package aqi

import (
	"testing"
	"time"

	"github.com/airwatch-project/airwatch/internal/model"
)

func hourlyPM25(hoursAgo int, now time.Time, value float64) model.HourlyHistoryEntry {
	return model.HourlyHistoryEntry{
		HourTS: now.Add(-time.Duration(hoursAgo) * time.Hour),
		Pollutants: map[model.Pollutant]model.HourlyPollutantSnapshot{
			model.PM25: {Value: value, Units: model.UnitUGM3},
		},
	}
}

// S3: 24 consecutive hourly writes of PM2.5 = 9.0 yield averaged 9.0, AQI 50.
func TestS3EPAAveragingFullHistory(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	var history []model.HourlyHistoryEntry
	for i := 1; i <= 23; i++ {
		history = append(history, hourlyPM25(i, now, 9.0))
	}

	result, err := CalculatePollutantAQI(model.PM25, 9.0, history, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.InsufficientForEPA {
		t.Fatal("expected full 24-point history to satisfy EPA completeness")
	}
	if result.AveragedValue != 9.0 {
		t.Errorf("got averaged %v want 9.0", result.AveragedValue)
	}
	if result.AQI != 50 {
		t.Errorf("got AQI %d want 50 (upper edge of Good)", result.AQI)
	}
}

// S3 continued: only 17 of 24 points present falls back to current-hour
// value and flags insufficiency.
func TestS3EPAAveragingInsufficientHistory(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	var history []model.HourlyHistoryEntry
	for i := 1; i <= 16; i++ {
		history = append(history, hourlyPM25(i, now, 9.0))
	}

	result, err := CalculatePollutantAQI(model.PM25, 30.0, history, false)
	if err != nil {
		t.Fatal(err)
	}
	if !result.InsufficientForEPA {
		t.Fatal("expected 17-point history (below 18/24) to be flagged insufficient")
	}
	if result.AveragedValue != 30.0 {
		t.Errorf("insufficient data should fall back to current-hour value, got %v", result.AveragedValue)
	}
}

// S5: PM2.5 averaged 600 ug/m3 caps at AQI 500, Hazardous, above_scale.
func TestS5AQIOverflow(t *testing.T) {
	result, err := CalculatePollutantAQI(model.PM25, 600.0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.AQI != 500 {
		t.Errorf("got %d want 500", result.AQI)
	}
	if result.Category != "Hazardous" {
		t.Errorf("got %q want Hazardous", result.Category)
	}
	if result.BreakpointUsed != "above_scale" {
		t.Errorf("got %q want above_scale", result.BreakpointUsed)
	}
}

func TestDominantPollutantTieBreakOrder(t *testing.T) {
	perPollutant := map[model.Pollutant]model.PollutantAQI{
		model.NO2:  {AQI: 80},
		model.PM25: {AQI: 80},
		model.O3:   {AQI: 80},
	}
	dominant, _ := dominantPollutant(perPollutant)
	if dominant != model.PM25 {
		t.Errorf("expected PM25 to win the tie per EPAPollutants order, got %v", dominant)
	}
}

func TestDominantPollutantStrictMax(t *testing.T) {
	perPollutant := map[model.Pollutant]model.PollutantAQI{
		model.NO2:  {AQI: 40},
		model.PM25: {AQI: 155},
		model.O3:   {AQI: 90},
	}
	dominant, result := dominantPollutant(perPollutant)
	if dominant != model.PM25 || result.AQI != 155 {
		t.Errorf("expected PM25 with AQI 155 to dominate, got %v %d", dominant, result.AQI)
	}
}

func TestCalculateProducesWhyTodayForDominantPollutant(t *testing.T) {
	fused := map[model.Pollutant]model.FusedConcentration{
		model.PM25: {Pollutant: model.PM25, Value: 30.0},
	}
	weather := &model.WeatherContext{TemperatureC: 35, WindSpeedMS: 1, HumidityPercent: 85}

	result, err := Calculate(fused, nil, weather, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.DominantPollutant != model.PM25 {
		t.Fatalf("expected PM25 to dominate, got %v", result.DominantPollutant)
	}
	if result.WhyToday == "" {
		t.Error("expected a non-empty why-today explanation")
	}
}

func TestCalculateSkipsHCHOFromOverallAQI(t *testing.T) {
	fused := map[model.Pollutant]model.FusedConcentration{
		model.HCHO: {Pollutant: model.HCHO, Value: 1000},
		model.NO2:  {Pollutant: model.NO2, Value: 30},
	}
	result, err := Calculate(fused, nil, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.DominantPollutant == model.HCHO {
		t.Fatal("HCHO must never be the dominant pollutant")
	}
	if _, ok := result.PerPollutant[model.HCHO]; ok {
		t.Error("HCHO should not appear in the overall per-pollutant AQI map")
	}
}
