package fusion

import (
	"math"
	"testing"

	"github.com/airwatch-project/airwatch/internal/model"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestFuseAllFourSourcesWeightsConserve(t *testing.T) {
	bySource := map[model.SourceID]model.RawPollutantMeasurement{
		model.SourceGroundA:   {Value: 20},
		model.SourceGroundB:   {Value: 22},
		model.SourceSatellite: {Value: 18},
		model.SourceModel:     {Value: 25},
	}

	fused, ok := Fuse(model.SO2, bySource)
	if !ok {
		t.Fatal("expected fusion to succeed")
	}

	var sum float64
	for _, w := range fused.WeightsUsed {
		sum += w
	}
	if !approxEqual(sum, 1.0, 1e-9) {
		t.Errorf("weights must sum to exactly 1.0, got %v", sum)
	}
	if fused.WeightsUsed[model.SourceGroundA] != 0.50 {
		t.Errorf("ground A weight should be unchanged at full coverage, got %v", fused.WeightsUsed[model.SourceGroundA])
	}
}

func TestFuseMissingSourcesRenormalize(t *testing.T) {
	// Only ground A and model present: 0.50 and 0.05 renormalize to 10/11 and 1/11.
	bySource := map[model.SourceID]model.RawPollutantMeasurement{
		model.SourceGroundA: {Value: 20},
		model.SourceModel:   {Value: 25},
	}

	fused, ok := Fuse(model.SO2, bySource)
	if !ok {
		t.Fatal("expected fusion to succeed")
	}

	var sum float64
	for _, w := range fused.WeightsUsed {
		sum += w
	}
	if !approxEqual(sum, 1.0, 1e-9) {
		t.Errorf("renormalized weights must still sum to exactly 1.0, got %v", sum)
	}
	if len(fused.WeightsUsed) != 2 {
		t.Errorf("expected exactly 2 weights, got %d", len(fused.WeightsUsed))
	}
}

func TestFuseIgnoresNonPositiveValues(t *testing.T) {
	bySource := map[model.SourceID]model.RawPollutantMeasurement{
		model.SourceGroundA:   {Value: 0},
		model.SourceSatellite: {Value: -5},
		model.SourceGroundB:   {Value: 12},
	}

	fused, ok := Fuse(model.NO2, bySource)
	if !ok {
		t.Fatal("expected fusion to succeed with one valid source")
	}
	if len(fused.WeightsUsed) != 1 {
		t.Fatalf("expected only ground B to contribute, got %v", fused.WeightsUsed)
	}
	if _, present := fused.WeightsUsed[model.SourceGroundB]; !present {
		t.Error("ground B should be the sole contributor")
	}
}

func TestFuseNoUsableSourcesFails(t *testing.T) {
	bySource := map[model.SourceID]model.RawPollutantMeasurement{
		model.SourceGroundA: {Value: 0},
	}
	if _, ok := Fuse(model.PM25, bySource); ok {
		t.Fatal("expected fusion to fail when no source has a usable value")
	}
}

func TestFusePM25GroundOnlyIsNotBiasCorrected(t *testing.T) {
	bySource := map[model.SourceID]model.RawPollutantMeasurement{
		model.SourceGroundA: {Value: 10},
	}
	fused, ok := Fuse(model.PM25, bySource)
	if !ok {
		t.Fatal("expected fusion to succeed")
	}
	if fused.BiasCorrectionApplied {
		t.Error("ground sources are the reference and must not be bias-corrected")
	}
	if !approxEqual(fused.Value, 10, 1e-9) {
		t.Errorf("ground A value should pass through unchanged, got %v want 10", fused.Value)
	}
}

func TestFusePM25ModelIsBiasCorrectedGroundIsNot(t *testing.T) {
	bySource := map[model.SourceID]model.RawPollutantMeasurement{
		model.SourceGroundA: {Value: 10},
		model.SourceModel:   {Value: 18.7},
	}
	fused, ok := Fuse(model.PM25, bySource)
	if !ok {
		t.Fatal("expected fusion to succeed")
	}
	if !fused.BiasCorrectionApplied {
		t.Error("PM2.5 with a model source present should bias-correct")
	}

	wantGroundWeight := baseWeights[model.SourceGroundA] / (baseWeights[model.SourceGroundA] + baseWeights[model.SourceModel])
	wantModelWeight := baseWeights[model.SourceModel] / (baseWeights[model.SourceGroundA] + baseWeights[model.SourceModel])
	wantModelValue := 18.7*0.78 + 5.2
	want := 10*wantGroundWeight + wantModelValue*wantModelWeight
	if !approxEqual(fused.Value, want, 1e-9) {
		t.Errorf("got %v want %v (ground A uncorrected, model corrected)", fused.Value, want)
	}
}

func TestFuseO3RequiresModelForBiasCorrection(t *testing.T) {
	groundOnly := map[model.SourceID]model.RawPollutantMeasurement{
		model.SourceGroundA: {Value: 40},
	}
	fused, ok := Fuse(model.O3, groundOnly)
	if !ok {
		t.Fatal("expected fusion to succeed")
	}
	if fused.BiasCorrectionApplied {
		t.Error("O3 without a model source should not bias-correct")
	}

	withModel := map[model.SourceID]model.RawPollutantMeasurement{
		model.SourceGroundA: {Value: 40},
		model.SourceModel:   {Value: 38},
	}
	fused, ok = Fuse(model.O3, withModel)
	if !ok {
		t.Fatal("expected fusion to succeed")
	}
	if !fused.BiasCorrectionApplied {
		t.Error("O3 with a model source should bias-correct")
	}
}

func TestFuseConfidenceCappedAtPoint9(t *testing.T) {
	bySource := map[model.SourceID]model.RawPollutantMeasurement{
		model.SourceGroundA:   {Value: 20},
		model.SourceGroundB:   {Value: 22},
		model.SourceSatellite: {Value: 18},
		model.SourceModel:     {Value: 25},
	}
	fused, ok := Fuse(model.PM25, bySource)
	if !ok {
		t.Fatal("expected fusion to succeed")
	}
	if fused.Confidence > 0.9 {
		t.Errorf("confidence must be capped at 0.9, got %v", fused.Confidence)
	}
}
