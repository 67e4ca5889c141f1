// Package collector fans out the source adapters for a single location in
// parallel and merges their results into one raw observation, isolating a
// single failing adapter from its siblings.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/airwatch-project/airwatch/internal/model"
	"github.com/airwatch-project/airwatch/internal/sources"
)

// Soft per-adapter and hard per-location collection deadlines.
const (
	PerAdapterTimeout  = 30 * time.Second
	PerLocationTimeout = 60 * time.Second
)

// Observation is the merged output of one collection cycle for one
// location: every source's measurements, keyed by source, plus weather
// context and per-adapter diagnostics.
type Observation struct {
	Location    model.Location
	Timestamp   time.Time
	Sources     map[model.SourceID]map[model.Pollutant]model.RawPollutantMeasurement
	Weather     *model.WeatherContext
	Diagnostics map[model.SourceID]sources.Diagnostics
}

// Collector fans out a fixed set of pollutant adapters (and any
// weather-capable adapters) concurrently for one location.
type Collector struct {
	Logger          log.Logger
	PollutantAdapters []sources.Adapter
	WeatherAdapters   []sources.WeatherAdapter
}

// New builds a collector from the adapters that apply to a given location
// (callers decide whether to include the satellite adapter based on the NA
// bounding box).
func New(logger log.Logger, pollutantAdapters []sources.Adapter, weatherAdapters []sources.WeatherAdapter) *Collector {
	return &Collector{Logger: logger, PollutantAdapters: pollutantAdapters, WeatherAdapters: weatherAdapters}
}

// Collect fans out every adapter as an independent goroutine, applying a
// soft per-adapter timeout and a hard per-location timeout. A single
// failing or slow adapter degrades that adapter's contribution to an empty
// set rather than aborting its siblings; exceeding the total budget
// returns whatever completed.
func (c *Collector) Collect(ctx context.Context, loc model.Location, now time.Time) *Observation {
	ctx, cancel := context.WithTimeout(ctx, PerLocationTimeout)
	defer cancel()

	obs := &Observation{
		Location:    loc,
		Timestamp:   now,
		Sources:     make(map[model.SourceID]map[model.Pollutant]model.RawPollutantMeasurement),
		Diagnostics: make(map[model.SourceID]sources.Diagnostics),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, adapter := range c.PollutantAdapters {
		adapter := adapter
		wg.Add(1)
		go func() {
			defer wg.Done()
			measurements, diag := c.runWithSoftTimeout(ctx, adapter, loc, now)

			mu.Lock()
			defer mu.Unlock()
			obs.Sources[adapter.Name()] = measurements
			obs.Diagnostics[adapter.Name()] = diag
		}()
	}

	var weatherOnce sync.Once
	for _, wAdapter := range c.WeatherAdapters {
		wAdapter := wAdapter
		wg.Add(1)
		go func() {
			defer wg.Done()
			weather, diag := c.runWeatherWithSoftTimeout(ctx, wAdapter, loc, now)

			mu.Lock()
			defer mu.Unlock()
			if weather != nil {
				weatherOnce.Do(func() { obs.Weather = weather })
			}
			if named, ok := wAdapter.(sources.Adapter); ok {
				obs.Diagnostics[named.Name()] = diag
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		level.Warn(c.Logger).Log("msg", "collection deadline exceeded, returning partial results", "location", loc.ID())
	}

	return obs
}

func (c *Collector) runWithSoftTimeout(ctx context.Context, adapter sources.Adapter, loc model.Location, now time.Time) (map[model.Pollutant]model.RawPollutantMeasurement, sources.Diagnostics) {
	adapterCtx, cancel := context.WithTimeout(ctx, PerAdapterTimeout)
	defer cancel()

	type result struct {
		measurements map[model.Pollutant]model.RawPollutantMeasurement
		diag         sources.Diagnostics
	}
	resultCh := make(chan result, 1)

	go func() {
		measurements, diag := adapter.Fetch(adapterCtx, loc, now)
		resultCh <- result{measurements: measurements, diag: diag}
	}()

	select {
	case r := <-resultCh:
		return r.measurements, r.diag
	case <-adapterCtx.Done():
		level.Warn(c.Logger).Log("msg", "adapter soft timeout", "source", adapter.Name())
		return map[model.Pollutant]model.RawPollutantMeasurement{}, sources.Diagnostics{Source: adapter.Name(), Errors: []error{adapterCtx.Err()}}
	}
}

func (c *Collector) runWeatherWithSoftTimeout(ctx context.Context, adapter sources.WeatherAdapter, loc model.Location, now time.Time) (*model.WeatherContext, sources.Diagnostics) {
	adapterCtx, cancel := context.WithTimeout(ctx, PerAdapterTimeout)
	defer cancel()

	type result struct {
		weather *model.WeatherContext
		diag    sources.Diagnostics
	}
	resultCh := make(chan result, 1)

	go func() {
		weather, diag := adapter.FetchWeather(adapterCtx, loc, now)
		resultCh <- result{weather: weather, diag: diag}
	}()

	select {
	case r := <-resultCh:
		return r.weather, r.diag
	case <-adapterCtx.Done():
		return nil, sources.Diagnostics{Errors: []error{adapterCtx.Err()}}
	}
}
