package sources

import (
	"math"
	"testing"
)

func TestNearestIndex(t *testing.T) {
	axis := []float64{10, 20, 30, 40}
	if got := nearestIndex(axis, 21); got != 1 {
		t.Errorf("got %d want 1", got)
	}
	if got := nearestIndex(axis, 36); got != 3 {
		t.Errorf("got %d want 3", got)
	}
	if got := nearestIndex(nil, 1); got != -1 {
		t.Errorf("empty axis: got %d want -1", got)
	}
}

func TestFilterReasonCloudFraction(t *testing.T) {
	reason := filterReason(1.0, -999, 0, 0.45)
	if reason == "" {
		t.Fatal("expected cloudy pixel to be filtered")
	}
}

func TestFilterReasonQualityFlag(t *testing.T) {
	reason := filterReason(1.0, -999, 1, 0.05)
	if reason == "" {
		t.Fatal("expected non-zero quality flag to be filtered")
	}
}

func TestFilterReasonAccepts(t *testing.T) {
	reason := filterReason(2.5e15, -999, 0, 0.05)
	if reason != "" {
		t.Fatalf("expected clean pixel to pass, got reason %q", reason)
	}
}

func TestFilterReasonNaNAndFill(t *testing.T) {
	if filterReason(math.NaN(), -999, 0, 0.0) == "" {
		t.Error("NaN should be filtered")
	}
	if filterReason(-999, -999, 0, 0.0) == "" {
		t.Error("fill value should be filtered")
	}
	if filterReason(-1, -999, 0, 0.0) == "" {
		t.Error("negative value should be filtered")
	}
}
