// Package sources implements one adapter per external air-quality data
// source: a satellite tile store, an atmospheric-chemistry model API, two
// ground-station networks, and a weather API. Every adapter implements the
// same Fetch contract and never lets an error cross the boundary as a
// panic or unchecked exception — failures become typed errors recorded in
// Diagnostics.
package sources

import (
	"context"
	"time"

	"github.com/go-kit/log"

	"github.com/airwatch-project/airwatch/internal/model"
)

// Diagnostics records how a single Fetch call went, independent of whether
// it produced any usable measurements.
type Diagnostics struct {
	Source       model.SourceID
	LatencyMS    int64
	Attempts     int
	FilterReasons []string
	Errors       []error
}

// Adapter is the contract every source implements.
type Adapter interface {
	Name() model.SourceID
	Fetch(ctx context.Context, loc model.Location, now time.Time) (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics)
}

// WeatherAdapter is implemented by sources capable of supplying the
// five-field weather context (currently the model and weather adapters).
type WeatherAdapter interface {
	FetchWeather(ctx context.Context, loc model.Location, now time.Time) (*model.WeatherContext, Diagnostics)
}

// timed runs fn and returns its result plus the Diagnostics.LatencyMS field
// filled in, so every adapter reports latency the same way.
func timed(logger log.Logger, source model.SourceID, fn func() (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics)) (map[model.Pollutant]model.RawPollutantMeasurement, Diagnostics) {
	start := time.Now()
	measurements, diag := fn()
	diag.Source = source
	diag.LatencyMS = time.Since(start).Milliseconds()
	return measurements, diag
}
