package sources

import (
	"testing"
	"time"
)

func TestNearestTimestampValue(t *testing.T) {
	resp := &modelTimeSeriesResponse{
		Time: []string{
			"2026-07-31T10:00:00Z",
			"2026-07-31T11:00:00Z",
			"2026-07-31T12:00:00Z",
		},
		Values: map[string][]float64{
			"no2": {10, 20, 30},
		},
	}

	now, _ := time.Parse(time.RFC3339, "2026-07-31T11:10:00Z")
	got, err := nearestTimestampValue(resp, "no2", now)
	if err != nil {
		t.Fatal(err)
	}
	if got != 20 {
		t.Errorf("got %v want 20 (nearest to 11:10 is 11:00)", got)
	}
}

func TestNearestTimestampValueMissingSeries(t *testing.T) {
	resp := &modelTimeSeriesResponse{Time: []string{"2026-07-31T10:00:00Z"}, Values: map[string][]float64{}}
	if _, err := nearestTimestampValue(resp, "missing", time.Now()); err == nil {
		t.Fatal("expected error for missing series")
	}
}
