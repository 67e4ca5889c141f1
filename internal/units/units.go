// Package units implements the pure, static EPA tables and unit
// conversions that every other component relies on: molar-mass based
// ppb/ppm/µg·m⁻³ conversion, and the breakpoint tables used both to
// compute AQI from concentration and, in reverse, to recover a
// concentration from an AQI-only ground source.
package units

import (
	"errors"
	"fmt"

	"github.com/airwatch-project/airwatch/internal/model"
)

// ErrUnitUnsupported is returned when a requested conversion route isn't in
// the table, rather than silently returning the input unconverted.
var ErrUnitUnsupported = errors.New("units: unsupported conversion route")

// Molar masses in g/mol, used by the ideal-gas-law ppb<->ug/m3 conversion.
var molarMass = map[model.Pollutant]float64{
	model.NO2: 46.0055,
	model.SO2: 64.066,
	model.CO:  28.010,
	model.O3:  47.9982,
}

const (
	gasConstantR  = 0.0820573 // L atm / (mol K)
	stdTempK      = 298.15    // 25 degC
	stdPressureAtm = 1.0
)

// ugm3FromPPB converts ppb to micrograms per cubic meter using the ideal
// gas law with the supplied temperature (K) and pressure (atm), falling
// back to 25 degC / 1 atm when either is zero.
func ugm3FromPPB(pollutant model.Pollutant, ppb, tempK, pressureAtm float64) (float64, error) {
	m, ok := molarMass[pollutant]
	if !ok {
		return 0, fmt.Errorf("%w: no molar mass for %s", ErrUnitUnsupported, pollutant)
	}
	if tempK == 0 {
		tempK = stdTempK
	}
	if pressureAtm == 0 {
		pressureAtm = stdPressureAtm
	}
	// ugm3 = ppb * M * P / (R * T) * 1e-3
	return ppb * m * pressureAtm / (gasConstantR * tempK) * 1e-3, nil
}

// ppbFromUGM3 is the inverse of ugm3FromPPB.
func ppbFromUGM3(pollutant model.Pollutant, ugm3, tempK, pressureAtm float64) (float64, error) {
	m, ok := molarMass[pollutant]
	if !ok {
		return 0, fmt.Errorf("%w: no molar mass for %s", ErrUnitUnsupported, pollutant)
	}
	if tempK == 0 {
		tempK = stdTempK
	}
	if pressureAtm == 0 {
		pressureAtm = stdPressureAtm
	}
	return ugm3 * gasConstantR * tempK / (m * pressureAtm) * 1e3, nil
}

// Convert converts value for pollutant from one canonical unit to another.
// tempK and pressureAtm are optional local atmospheric conditions; pass 0
// for both to use the 25 degC / 1 atm standard fallback. Any route not
// explicitly supported returns ErrUnitUnsupported rather than the input
// value.
func Convert(pollutant model.Pollutant, value float64, from, to model.Unit, tempK, pressureAtm float64) (float64, error) {
	if from == to {
		return value, nil
	}

	switch {
	case from == model.UnitPPM && to == model.UnitPPB:
		return value * 1000, nil
	case from == model.UnitPPB && to == model.UnitPPM:
		return value / 1000, nil
	case from == model.UnitPPB && to == model.UnitUGM3:
		return ugm3FromPPB(pollutant, value, tempK, pressureAtm)
	case from == model.UnitUGM3 && to == model.UnitPPB:
		return ppbFromUGM3(pollutant, value, tempK, pressureAtm)
	case from == model.UnitPPM && to == model.UnitUGM3:
		ppb, err := ugm3FromPPB(pollutant, value*1000, tempK, pressureAtm)
		return ppb, err
	case from == model.UnitUGM3 && to == model.UnitPPM:
		ppb, err := ppbFromUGM3(pollutant, value, tempK, pressureAtm)
		if err != nil {
			return 0, err
		}
		return ppb / 1000, nil
	default:
		return 0, fmt.Errorf("%w: %s -> %s", ErrUnitUnsupported, from, to)
	}
}

// ToCanonical converts value (in from units) to the canonical unit for
// pollutant (see model.CanonicalUnit); the scheduler applies it to every
// measurement before fusion.
func ToCanonical(pollutant model.Pollutant, value float64, from model.Unit, tempK, pressureAtm float64) (float64, error) {
	return Convert(pollutant, value, from, model.CanonicalUnit(pollutant), tempK, pressureAtm)
}

// Satellite column-density-to-surface-ppb conversion factors, applied by
// the satellite adapter before the value ever reaches fusion.
const (
	FactorNO2ColumnToPPB  = 3.5
	FactorHCHOColumnToPPB = 2.8
	// DU (Dobson Units) to ppb for total-column O3, approximating a
	// well-mixed troposphere assumption used for the demo conversion.
	FactorO3DUToPPB = 0.01
)
