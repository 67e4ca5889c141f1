package storage

import (
	"math"
	"testing"

	"github.com/airwatch-project/airwatch/internal/model"
)

func TestNullFloatCoercesNilAndNaN(t *testing.T) {
	if v := nullFloat(nil); v.Valid {
		t.Error("nil pointer should map to SQL NULL")
	}
	nan := math.NaN()
	if v := nullFloat(&nan); v.Valid {
		t.Error("NaN should map to SQL NULL")
	}
	val := 12.5
	if v := nullFloat(&val); !v.Valid || v.Float64 != 12.5 {
		t.Errorf("got %+v want valid 12.5", v)
	}
}

func TestNullStringCoercesEmptyAndNullTokens(t *testing.T) {
	cases := []string{"", "null", "NULL", "   "}
	for _, c := range cases {
		if v := nullString(c); v.Valid {
			t.Errorf("input %q should map to SQL NULL", c)
		}
	}
	if v := nullString("PM25"); !v.Valid || v.String != "PM25" {
		t.Errorf("got %+v want valid PM25", v)
	}
}

func TestNullIntNilMapsToNull(t *testing.T) {
	if v := nullInt(nil); v.Valid {
		t.Error("nil pointer should map to SQL NULL")
	}
	n := 42
	if v := nullInt(&n); !v.Valid || v.Int64 != 42 {
		t.Errorf("got %+v want valid 42", v)
	}
}

func TestCategoryForAQIBoundaries(t *testing.T) {
	cases := []struct {
		aqi  float64
		want string
	}{
		{0, "Good"}, {50, "Good"}, {51, "Moderate"}, {100, "Moderate"},
		{101, "Unhealthy for Sensitive Groups"}, {200, "Unhealthy"},
		{250, "Very Unhealthy"}, {400, "Hazardous"},
	}
	for _, c := range cases {
		if got := categoryForAQI(c.aqi); got != c.want {
			t.Errorf("categoryForAQI(%v) = %q, want %q", c.aqi, got, c.want)
		}
	}
}

func TestModalDominantPrefersEPAPriorityOnTie(t *testing.T) {
	counts := map[model.Pollutant]int{
		model.NO2:  10,
		model.PM25: 10,
		model.O3:   5,
	}
	if got := modalDominant(counts); got != model.PM25 {
		t.Errorf("got %v want PM25 (higher EPA priority on tie)", got)
	}
}

func TestModalDominantStrictMajority(t *testing.T) {
	counts := map[model.Pollutant]int{
		model.NO2:  3,
		model.PM25: 20,
	}
	if got := modalDominant(counts); got != model.PM25 {
		t.Errorf("got %v want PM25", got)
	}
}

func TestModalDominantEmpty(t *testing.T) {
	if got := modalDominant(map[model.Pollutant]int{}); got != "" {
		t.Errorf("got %v want empty pollutant", got)
	}
}
