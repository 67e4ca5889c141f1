// Package fusion merges per-source pollutant measurements into a single
// trust-weighted concentration, applying validation-derived bias
// correction before averaging.
package fusion

import (
	"math"
	"sort"

	"github.com/airwatch-project/airwatch/internal/model"
)

// Trust weights, sum to exactly 1.0.
var baseWeights = map[model.SourceID]float64{
	model.SourceGroundA:  0.50,
	model.SourceGroundB:  0.30,
	model.SourceSatellite: 0.15,
	model.SourceModel:    0.05,
}

type biasParams struct {
	slope     float64
	intercept float64
}

// Per-pollutant, per-source bias correction coefficients derived from
// validation studies comparing each source against ground truth.
var biasCorrections = map[model.Pollutant]map[model.SourceID]biasParams{
	model.NO2: {
		model.SourceSatellite: {slope: 0.92, intercept: 2.1},
		model.SourceModel:     {slope: 0.85, intercept: 3.8},
	},
	model.O3: {
		model.SourceModel: {slope: 0.95, intercept: -1.2},
	},
	model.PM25: {
		model.SourceSatellite: {slope: 0.78, intercept: 5.2},
		model.SourceModel:    {slope: 0.78, intercept: 5.2},
	},
	model.HCHO: {
		model.SourceSatellite: {slope: 0.88, intercept: 1.5},
	},
}

// shouldApplyBiasCorrection decides, per pollutant, whether the sources
// present justify correction. Ground sources are the reference and are
// never corrected; only satellite/model readings are adjusted toward
// them. NO2 and PM2.5 correct whenever satellite or model is present;
// O3 requires model; HCHO requires satellite.
func shouldApplyBiasCorrection(pollutant model.Pollutant, available map[model.SourceID]bool) bool {
	table, ok := biasCorrections[pollutant]
	if !ok {
		return false
	}
	switch pollutant {
	case model.NO2, model.PM25:
		return available[model.SourceSatellite] || available[model.SourceModel]
	case model.O3:
		return available[model.SourceModel]
	case model.HCHO:
		return available[model.SourceSatellite]
	default:
		_ = table
		return false
	}
}

func applyBiasCorrection(pollutant model.Pollutant, source model.SourceID, value float64) float64 {
	table, ok := biasCorrections[pollutant]
	if !ok {
		return value
	}
	params, ok := table[source]
	if !ok {
		return value
	}
	return value*params.slope + params.intercept
}

// normalizeWeights renormalizes the trust weights of the sources that
// actually reported a value so they sum to exactly 1.0, absorbing any
// floating-point residual into the largest weight.
func normalizeWeights(available []model.SourceID) map[model.SourceID]float64 {
	filtered := make(map[model.SourceID]float64, len(available))
	var total float64
	for _, src := range available {
		if w, ok := baseWeights[src]; ok {
			filtered[src] = w
			total += w
		}
	}
	if total == 0 {
		return map[model.SourceID]float64{}
	}

	normalized := make(map[model.SourceID]float64, len(filtered))
	var sum float64
	for src, w := range filtered {
		n := w / total
		normalized[src] = n
		sum += n
	}

	if sum != 1.0 {
		largest := largestWeightSource(normalized)
		normalized[largest] += 1.0 - sum
	}
	return normalized
}

func largestWeightSource(weights map[model.SourceID]float64) model.SourceID {
	srcs := make([]model.SourceID, 0, len(weights))
	for s := range weights {
		srcs = append(srcs, s)
	}
	sort.Slice(srcs, func(i, j int) bool { return srcs[i] < srcs[j] })

	best := srcs[0]
	for _, s := range srcs[1:] {
		if weights[s] > weights[best] {
			best = s
		}
	}
	return best
}

// Fuse combines per-source measurements of a single pollutant, already
// converted to the pollutant's canonical unit, into one FusedConcentration.
// A measurement with a non-positive value is treated as unusable (matches
// the "ignore zero/negative" rule used upstream) and excluded from fusion.
func Fuse(pollutant model.Pollutant, bySource map[model.SourceID]model.RawPollutantMeasurement) (model.FusedConcentration, bool) {
	usable := map[model.SourceID]float64{}
	available := map[model.SourceID]bool{}
	var order []model.SourceID
	for src, m := range bySource {
		if m.Value > 0 {
			usable[src] = m.Value
			available[src] = true
			order = append(order, src)
		}
	}
	if len(usable) == 0 {
		return model.FusedConcentration{}, false
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	applyBias := shouldApplyBiasCorrection(pollutant, available)
	corrected := make(map[model.SourceID]float64, len(usable))
	for _, src := range order {
		if applyBias {
			corrected[src] = applyBiasCorrection(pollutant, src, usable[src])
		} else {
			corrected[src] = usable[src]
		}
	}

	weights := normalizeWeights(order)

	var fused, confidence float64
	if len(weights) == 0 {
		var sum float64
		for _, v := range corrected {
			sum += v
		}
		fused = sum / float64(len(corrected))
		confidence = 0.5
	} else {
		for _, src := range order {
			fused += corrected[src] * weights[src]
		}
		biasBoost := 0.0
		if applyBias {
			biasBoost = 0.1
		}
		coverage := float64(len(order)) / float64(len(baseWeights))
		confidence = math.Min(0.9, 0.6+coverage*0.2+biasBoost)
	}

	return model.FusedConcentration{
		Pollutant:             pollutant,
		Value:                 fused,
		Units:                 model.CanonicalUnit(pollutant),
		Confidence:            confidence,
		WeightsUsed:           weights,
		BiasCorrectionApplied: applyBias,
		SourcesUsed:           order,
	}, true
}
