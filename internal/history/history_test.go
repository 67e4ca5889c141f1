package history

import (
	"context"
	"testing"
	"time"

	"github.com/airwatch-project/airwatch/internal/model"
)

func hourEntry(hoursAgo int, now time.Time) model.HourlyHistoryEntry {
	return model.HourlyHistoryEntry{
		HourTS: now.Add(-time.Duration(hoursAgo) * time.Hour),
		Pollutants: map[model.Pollutant]model.HourlyPollutantSnapshot{
			model.NO2: {Value: float64(hoursAgo), Units: model.UnitPPB},
		},
	}
}

func TestAppendTruncatesAt25AndOrdersDescending(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		if err := store.Append(ctx, "loc1", hourEntry(i, now)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.Load(ctx, "loc1", 30*time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != RetentionHours {
		t.Fatalf("expected truncation to %d entries, got %d", RetentionHours, len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if !entries[i-1].HourTS.After(entries[i].HourTS) {
			t.Fatalf("entries not strictly descending at index %d", i)
		}
	}
	// Most recent hour (0 hours ago) should have survived truncation.
	if !entries[0].HourTS.Equal(now) {
		t.Errorf("expected newest entry first, got %v", entries[0].HourTS)
	}
}

func TestAppendSameHourIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	e1 := hourEntry(0, now)
	e1.Pollutants[model.NO2] = model.HourlyPollutantSnapshot{Value: 10, Units: model.UnitPPB}
	store.Append(ctx, "loc1", e1)

	e2 := hourEntry(0, now)
	e2.Pollutants[model.NO2] = model.HourlyPollutantSnapshot{Value: 99, Units: model.UnitPPB}
	store.Append(ctx, "loc1", e2)

	entries, _ := store.Load(ctx, "loc1", time.Hour, now)
	if len(entries) != 1 {
		t.Fatalf("expected a single entry for the same hour, got %d", len(entries))
	}
	if entries[0].Pollutants[model.NO2].Value != 99 {
		t.Errorf("expected last write to win, got %v", entries[0].Pollutants[model.NO2].Value)
	}
}

func TestLoadRespectsWindow(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		store.Append(ctx, "loc1", hourEntry(i, now))
	}

	entries, err := store.Load(ctx, "loc1", 4*time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries within a 4-hour window (hours 0-4 inclusive), got %d", len(entries))
	}
}

func TestLoadUnknownLocationReturnsEmpty(t *testing.T) {
	store := NewMemoryStore()
	entries, err := store.Load(context.Background(), "missing", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries for an unknown location, got %d", len(entries))
	}
}
