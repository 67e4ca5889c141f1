// Package scheduler drives the hourly collection tick: it asks the
// location prioritiser for the locations worth collecting, partitions
// them by whether the satellite adapter applies, and runs each one
// through collection, fusion, AQI, and persistence in sequence.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/airwatch-project/airwatch/internal/aqi"
	"github.com/airwatch-project/airwatch/internal/collector"
	"github.com/airwatch-project/airwatch/internal/config"
	"github.com/airwatch-project/airwatch/internal/fusion"
	"github.com/airwatch-project/airwatch/internal/history"
	"github.com/airwatch-project/airwatch/internal/metrics"
	"github.com/airwatch-project/airwatch/internal/model"
	"github.com/airwatch-project/airwatch/internal/priority"
	"github.com/airwatch-project/airwatch/internal/units"
)

// Store is the persistence surface the scheduler needs; *storage.Store
// satisfies it. Defined here, at the point of use, so a tick can be
// tested without a live MySQL connection.
type Store interface {
	UpsertHourly(ctx context.Context, row model.ComprehensiveAQIHourlyRow) error
	UpsertDaily(ctx context.Context, row model.DailyTrendRow) error
	RollupDaily(ctx context.Context, city string, date time.Time) (model.DailyTrendRow, error)
}

// Scheduler runs one hourly tick across the prioritised location set. It
// is single-threaded at this level: locations are processed one after
// another so MySQL write contention stays bounded; concurrency lives
// one level down, inside Collector.
type Scheduler struct {
	Logger  log.Logger
	Config  *config.Config
	Metrics *metrics.Metrics

	Priority *priority.Tracker
	History  history.Store
	Storage  Store

	// NACollector runs every adapter including satellite; WorldCollector
	// omits it for locations outside the NA bounding box.
	NACollector    *collector.Collector
	WorldCollector *collector.Collector

	ticking int32 // atomic flag, 0 = idle, 1 = tick in progress
}

// RunTick executes one full pass: fetch priority locations, process each
// sequentially, emit metrics. If a tick is already running it logs and
// returns immediately rather than overlapping work.
func (s *Scheduler) RunTick(ctx context.Context, now time.Time) {
	if !atomic.CompareAndSwapInt32(&s.ticking, 0, 1) {
		level.Warn(s.Logger).Log("msg", "tick skipped, previous tick still in progress")
		return
	}
	defer atomic.StoreInt32(&s.ticking, 0)

	start := now
	locations, err := s.Priority.PriorityLocations(ctx, s.Config.PriorityLimit)
	if err != nil {
		level.Error(s.Logger).Log("msg", "failed to load priority locations", "err", err)
		s.Metrics.Errors.WithLabelValues("priority").Inc()
		return
	}

	for _, entry := range locations {
		loc := model.Location{Latitude: entry.Latitude, Longitude: entry.Longitude, Name: entry.City}
		s.processLocation(ctx, loc, now)
	}

	s.Metrics.TickDuration.Observe(time.Since(start).Seconds())
}

// processLocation runs the C3->C4->C6->C7 pipeline for one location.
// Failures here never abort the tick; they are logged, counted, and the
// scheduler moves to the next location.
func (s *Scheduler) processLocation(ctx context.Context, loc model.Location, now time.Time) {
	c := s.collectorFor(loc)
	obs := c.Collect(ctx, loc, now)

	fused := s.fuseObservation(obs)

	hist, err := s.History.Load(ctx, loc.ID(), history.RetentionHours*time.Hour, now)
	if err != nil {
		level.Error(s.Logger).Log("msg", "failed to load history", "location", loc.ID(), "err", err)
		s.Metrics.Errors.WithLabelValues("history").Inc()
		hist = nil
	}

	result, err := aqi.Calculate(fused, hist, obs.Weather, now)
	if err != nil {
		level.Error(s.Logger).Log("msg", "aqi calculation failed", "location", loc.ID(), "err", err)
		s.Metrics.Errors.WithLabelValues("aqi").Inc()
		return
	}

	if err := s.appendHistory(ctx, loc, fused, now); err != nil {
		level.Error(s.Logger).Log("msg", "failed to append history", "location", loc.ID(), "err", err)
		s.Metrics.Errors.WithLabelValues("history").Inc()
	}

	row := buildHourlyRow(loc, result, obs.Weather, now)
	if err := s.Storage.UpsertHourly(ctx, row); err != nil {
		level.Error(s.Logger).Log("msg", "failed to store hourly row", "location", loc.ID(), "err", err)
		s.Metrics.Errors.WithLabelValues("storage").Inc()
		return
	}
	s.Metrics.MySQLStored.Inc()

	if now.Hour() == 23 {
		if _, err := s.rollupDaily(ctx, loc, now); err != nil {
			level.Error(s.Logger).Log("msg", "failed to roll up daily trend", "location", loc.ID(), "err", err)
			s.Metrics.Errors.WithLabelValues("rollup").Inc()
		} else {
			s.Metrics.DailyAveragesCreated.Inc()
		}
	}

	if err := s.Priority.MarkCollected(ctx, loc.ID(), now); err != nil {
		level.Error(s.Logger).Log("msg", "failed to mark collected", "location", loc.ID(), "err", err)
	}

	s.Metrics.LocationsCollected.Inc()
}

// collectorFor returns the NA collector (with satellite) or the world
// collector (without) depending on whether loc falls in the configured
// North America bounding box.
func (s *Scheduler) collectorFor(loc model.Location) *collector.Collector {
	if s.Config.NABoundingBox.Contains(loc.Latitude, loc.Longitude) {
		return s.NACollector
	}
	return s.WorldCollector
}

func (s *Scheduler) fuseObservation(obs *collector.Observation) map[model.Pollutant]model.FusedConcentration {
	bySourcePollutant := map[model.Pollutant]map[model.SourceID]model.RawPollutantMeasurement{}
	for src, measurements := range obs.Sources {
		for pollutant, m := range measurements {
			if m.Quality == model.QualityFilteredTag {
				continue // kept in the observation for auditing only
			}
			value, err := units.ToCanonical(pollutant, m.Value, m.Units, 0, 0)
			if err != nil {
				continue // unit route not covered: the value is dropped
			}
			m.Value = value
			m.Units = model.CanonicalUnit(pollutant)
			if bySourcePollutant[pollutant] == nil {
				bySourcePollutant[pollutant] = map[model.SourceID]model.RawPollutantMeasurement{}
			}
			bySourcePollutant[pollutant][src] = m
		}
	}

	fused := make(map[model.Pollutant]model.FusedConcentration, len(bySourcePollutant))
	for pollutant, bySource := range bySourcePollutant {
		if fc, ok := fusion.Fuse(pollutant, bySource); ok {
			fused[pollutant] = fc
		}
	}
	return fused
}

func (s *Scheduler) appendHistory(ctx context.Context, loc model.Location, fused map[model.Pollutant]model.FusedConcentration, now time.Time) error {
	snapshot := make(map[model.Pollutant]model.HourlyPollutantSnapshot, len(fused))
	for pollutant, fc := range fused {
		snapshot[pollutant] = model.HourlyPollutantSnapshot{
			Value:         fc.Value,
			Units:         fc.Units,
			Quality:       model.QualityGood,
			BiasCorrected: fc.BiasCorrectionApplied,
		}
	}
	return s.History.Append(ctx, loc.ID(), model.HourlyHistoryEntry{
		HourTS:     now.Truncate(time.Hour),
		Pollutants: snapshot,
	})
}

func (s *Scheduler) rollupDaily(ctx context.Context, loc model.Location, now time.Time) (model.DailyTrendRow, error) {
	row, err := s.Storage.RollupDaily(ctx, loc.Name, now)
	if err != nil {
		return model.DailyTrendRow{}, err
	}
	if err := s.Storage.UpsertDaily(ctx, row); err != nil {
		return model.DailyTrendRow{}, err
	}
	return row, nil
}

func buildHourlyRow(loc model.Location, result model.AQIResult, weather *model.WeatherContext, now time.Time) model.ComprehensiveAQIHourlyRow {
	pollutants := make(map[model.Pollutant]model.PersistedPollutant, len(result.PerPollutant))
	for pollutant, pa := range result.PerPollutant {
		value := pa.AveragedValue
		aqiVal := pa.AQI
		pollutants[pollutant] = model.PersistedPollutant{
			Concentration: &value,
			AQI:           &aqiVal,
			BiasCorrected: pa.BiasCorrected,
		}
	}

	return model.ComprehensiveAQIHourlyRow{
		City:              loc.Name,
		Latitude:          loc.Latitude,
		Longitude:         loc.Longitude,
		Timestamp:         now,
		OverallAQI:        result.OverallAQI,
		AQICategory:       result.Category,
		DominantPollutant: result.DominantPollutant,
		HealthMessage:     result.HealthMessage,
		Pollutants:        pollutants,
		Weather:           weather,
		WhyToday:          result.WhyToday,
	}
}
