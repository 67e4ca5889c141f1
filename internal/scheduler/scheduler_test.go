package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/airwatch-project/airwatch/internal/collector"
	"github.com/airwatch-project/airwatch/internal/config"
	"github.com/airwatch-project/airwatch/internal/history"
	"github.com/airwatch-project/airwatch/internal/metrics"
	"github.com/airwatch-project/airwatch/internal/model"
	"github.com/airwatch-project/airwatch/internal/priority"
	"github.com/airwatch-project/airwatch/internal/sources"
)

type fakeAdapter struct {
	name model.SourceID
	out  map[model.Pollutant]model.RawPollutantMeasurement
}

func (f *fakeAdapter) Name() model.SourceID { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context, loc model.Location, now time.Time) (map[model.Pollutant]model.RawPollutantMeasurement, sources.Diagnostics) {
	return f.out, sources.Diagnostics{Source: f.name}
}

// recordingStore captures the location IDs (cities, in this harness) an
// upsert is called for, so tests can assert scheduler locality.
type recordingStore struct {
	mu        sync.Mutex
	hourlyFor []string
	failFor   map[string]bool
}

func (r *recordingStore) UpsertHourly(ctx context.Context, row model.ComprehensiveAQIHourlyRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hourlyFor = append(r.hourlyFor, row.City)
	if r.failFor[row.City] {
		return errFakeStorage
	}
	return nil
}

func (r *recordingStore) UpsertDaily(ctx context.Context, row model.DailyTrendRow) error { return nil }

func (r *recordingStore) RollupDaily(ctx context.Context, city string, date time.Time) (model.DailyTrendRow, error) {
	return model.DailyTrendRow{City: city, Date: date}, nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFakeStorage = fakeErr("simulated storage failure")

func newTestScheduler(store *recordingStore) *Scheduler {
	pm25 := &fakeAdapter{name: model.SourceGroundA, out: map[model.Pollutant]model.RawPollutantMeasurement{
		model.PM25: {Pollutant: model.PM25, Value: 12, Units: model.UnitUGM3, SourceTag: model.SourceGroundA, ObservedAt: time.Now()},
	}}
	o3 := &fakeAdapter{name: model.SourceGroundB, out: map[model.Pollutant]model.RawPollutantMeasurement{
		model.O3: {Pollutant: model.O3, Value: 0.04, Units: model.UnitPPM, SourceTag: model.SourceGroundB, ObservedAt: time.Now()},
	}}

	c := collector.New(log.NewNopLogger(), []sources.Adapter{pm25, o3}, nil)

	return &Scheduler{
		Logger:  log.NewNopLogger(),
		Config:  &config.Config{PriorityLimit: 10},
		Metrics: metrics.New(),

		Priority:       priority.New(),
		History:        history.NewMemoryStore(),
		Storage:        store,
		NACollector:    c,
		WorldCollector: c,
	}
}

// Property 7: no two pipelines within one tick touch the same location;
// every registered location appears exactly once in the store's record.
func TestTickVisitsEachLocationExactlyOnce(t *testing.T) {
	store := &recordingStore{}
	s := newTestScheduler(store)
	ctx := context.Background()

	cities := []string{"alpha", "bravo", "charlie"}
	for i, city := range cities {
		loc := model.Location{Latitude: float64(i), Longitude: float64(i), Name: city}
		s.Priority.RegisterAlert(ctx, loc)
	}

	s.RunTick(ctx, time.Now())

	if len(store.hourlyFor) != len(cities) {
		t.Fatalf("expected %d upserts, got %d: %v", len(cities), len(store.hourlyFor), store.hourlyFor)
	}
	seen := map[string]int{}
	for _, city := range store.hourlyFor {
		seen[city]++
	}
	for _, city := range cities {
		if seen[city] != 1 {
			t.Errorf("expected city %s visited exactly once, got %d", city, seen[city])
		}
	}
}

// One location's storage failure must not prevent the others in the same
// tick from being processed.
func TestTickIsolatesPerLocationFailure(t *testing.T) {
	store := &recordingStore{failFor: map[string]bool{"bad": true}}
	s := newTestScheduler(store)
	ctx := context.Background()

	good1 := model.Location{Latitude: 1, Longitude: 1, Name: "good1"}
	bad := model.Location{Latitude: 2, Longitude: 2, Name: "bad"}
	good2 := model.Location{Latitude: 3, Longitude: 3, Name: "good2"}

	s.Priority.RegisterAlert(ctx, good1)
	s.Priority.RegisterAlert(ctx, bad)
	s.Priority.RegisterAlert(ctx, good2)

	s.RunTick(ctx, time.Now())

	if len(store.hourlyFor) != 3 {
		t.Fatalf("expected all 3 locations attempted, got %v", store.hourlyFor)
	}

	errCount := testutil.ToFloat64(s.Metrics.Errors.WithLabelValues("storage"))
	if errCount < 1 {
		t.Errorf("expected at least one storage error recorded, got %v", errCount)
	}
}

// buildHourlyRow must carry each pollutant's actual bias-correction state
// through to the persisted row, not a hardcoded value.
func TestBuildHourlyRowCarriesBiasCorrectedFlag(t *testing.T) {
	loc := model.Location{Latitude: 1, Longitude: 1, Name: "beta"}
	result := model.AQIResult{
		PerPollutant: map[model.Pollutant]model.PollutantAQI{
			model.PM25: {AveragedValue: 12, AQI: 50, BiasCorrected: true},
			model.O3:   {AveragedValue: 0.04, AQI: 37, BiasCorrected: false},
		},
	}

	row := buildHourlyRow(loc, result, nil, time.Now())

	if !row.Pollutants[model.PM25].BiasCorrected {
		t.Error("expected PM25's bias-corrected flag to be carried through as true")
	}
	if row.Pollutants[model.O3].BiasCorrected {
		t.Error("expected O3's bias-corrected flag to be carried through as false")
	}
}

// A second RunTick while the first is still in flight must be skipped,
// not run concurrently, so a slow tick never overlaps its successor.
func TestConcurrentTickIsSkipped(t *testing.T) {
	store := &recordingStore{}
	s := newTestScheduler(store)

	s.ticking = 1 // simulate an in-flight tick
	s.RunTick(context.Background(), time.Now())

	if len(store.hourlyFor) != 0 {
		t.Errorf("expected the overlapping tick to be skipped entirely, got %v", store.hourlyFor)
	}
}
