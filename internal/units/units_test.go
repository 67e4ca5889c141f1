package units

import (
	"math"
	"testing"

	"github.com/airwatch-project/airwatch/internal/model"
)

// Property 1: unit round-trip. For every pollutant with a defined molar
// mass, ugm3 -> ppb -> ugm3 differs from the input by less than 1e-6
// relative, across a range of plausible (T, P).
func TestUnitRoundTrip(t *testing.T) {
	pollutants := []model.Pollutant{model.NO2, model.SO2, model.CO, model.O3}
	conditions := []struct{ tempK, pressureAtm float64 }{
		{273.15, 1.0},
		{298.15, 1.0},
		{310.0, 0.95},
		{0, 0}, // fallback to standard conditions
	}

	for _, p := range pollutants {
		for _, c := range conditions {
			const original = 42.5
			ppb, err := Convert(p, original, model.UnitUGM3, model.UnitPPB, c.tempK, c.pressureAtm)
			if err != nil {
				t.Fatalf("%s ugm3->ppb: %v", p, err)
			}
			back, err := Convert(p, ppb, model.UnitPPB, model.UnitUGM3, c.tempK, c.pressureAtm)
			if err != nil {
				t.Fatalf("%s ppb->ugm3: %v", p, err)
			}
			rel := math.Abs(back-original) / original
			if rel >= 1e-6 {
				t.Errorf("%s round trip at T=%v P=%v: got %v want ~%v (rel err %v)", p, c.tempK, c.pressureAtm, back, original, rel)
			}
		}
	}
}

func TestConvertPPMPPB(t *testing.T) {
	got, err := Convert(model.O3, 1.0, model.UnitPPM, model.UnitPPB, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1000 {
		t.Errorf("got %v want 1000", got)
	}
}

func TestConvertUnsupportedRoute(t *testing.T) {
	_, err := Convert(model.NO2, 10, model.UnitMolecCM2, model.UnitPPB, 0, 0)
	if err == nil {
		t.Fatal("expected ErrUnitUnsupported for molecules/cm2 -> ppb, got nil")
	}
}

func TestConvertPPBUGM3NoMolarMass(t *testing.T) {
	_, err := Convert(model.PM25, 10, model.UnitPPB, model.UnitUGM3, 0, 0)
	if err == nil {
		t.Fatal("expected ErrUnitUnsupported for PM25 (no molar mass), got nil")
	}
}
