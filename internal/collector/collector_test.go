package collector

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"

	"github.com/airwatch-project/airwatch/internal/model"
	"github.com/airwatch-project/airwatch/internal/sources"
)

type fakeAdapter struct {
	name  model.SourceID
	delay time.Duration
	out   map[model.Pollutant]model.RawPollutantMeasurement
}

func (f *fakeAdapter) Name() model.SourceID { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context, loc model.Location, now time.Time) (map[model.Pollutant]model.RawPollutantMeasurement, sources.Diagnostics) {
	select {
	case <-time.After(f.delay):
		return f.out, sources.Diagnostics{Source: f.name}
	case <-ctx.Done():
		return map[model.Pollutant]model.RawPollutantMeasurement{}, sources.Diagnostics{Source: f.name, Errors: []error{ctx.Err()}}
	}
}

func TestCollectMergesAllFastAdapters(t *testing.T) {
	a := &fakeAdapter{name: model.SourceGroundA, out: map[model.Pollutant]model.RawPollutantMeasurement{
		model.PM25: {Pollutant: model.PM25, Value: 10, Units: model.UnitUGM3},
	}}
	b := &fakeAdapter{name: model.SourceGroundB, out: map[model.Pollutant]model.RawPollutantMeasurement{
		model.O3: {Pollutant: model.O3, Value: 40, Units: model.UnitPPB},
	}}

	c := New(log.NewNopLogger(), []sources.Adapter{a, b}, nil)
	obs := c.Collect(context.Background(), model.Location{Latitude: 1, Longitude: 2}, time.Now())

	if len(obs.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(obs.Sources))
	}
	if _, ok := obs.Sources[model.SourceGroundA][model.PM25]; !ok {
		t.Error("missing ground A PM25 measurement")
	}
	if _, ok := obs.Sources[model.SourceGroundB][model.O3]; !ok {
		t.Error("missing ground B O3 measurement")
	}
}

func TestCollectDegradesSlowAdapterIndependently(t *testing.T) {
	fast := &fakeAdapter{name: model.SourceGroundA, out: map[model.Pollutant]model.RawPollutantMeasurement{
		model.PM25: {Pollutant: model.PM25, Value: 10, Units: model.UnitUGM3},
	}}
	slow := &fakeAdapter{name: model.SourceSatellite, delay: PerAdapterTimeout + time.Second}

	c := New(log.NewNopLogger(), []sources.Adapter{fast, slow}, nil)
	obs := c.Collect(context.Background(), model.Location{}, time.Now())

	if len(obs.Sources[model.SourceGroundA]) != 1 {
		t.Error("fast adapter result should still be present")
	}
	if len(obs.Sources[model.SourceSatellite]) != 0 {
		t.Error("slow adapter should degrade to empty, not block the others")
	}
	if len(obs.Diagnostics[model.SourceSatellite].Errors) == 0 {
		t.Error("expected a timeout error recorded for the slow adapter")
	}
}
