package pipeline

import (
	"errors"
	"math"
	"testing"

	"EquiCast/internal/domain/models"
)

func TestFitNormalizerUsesInputsOnly(t *testing.T) {
	// the target is one step past the train inputs and must not move the scale
	train := models.TrainSplit{Windows: []models.Window{
		{Input: []float64{10, 11, 12}, Target: 13},
	}}
	state, err := FitNormalizer(train)
	if err != nil {
		t.Fatalf("FitNormalizer: %v", err)
	}
	if state.Min != 10 || state.Max != 12 {
		t.Fatalf("state = {%v %v}, want {10 12}", state.Min, state.Max)
	}

	got, err := Transform(state, 13)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if got != 1.5 {
		t.Fatalf("Transform(13) = %v, want 1.5", got)
	}
}

func TestTransformUnclamped(t *testing.T) {
	// fitted on [10,12]; values beyond the range map beyond [0,1]
	state := models.NormalizerState{Min: 10, Max: 12}

	got, err := Transform(state, 13)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if got != 1.5 {
		t.Fatalf("Transform(13) = %v, want 1.5", got)
	}

	back, err := Inverse(state, got)
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	if math.Abs(back-13) > 1e-12 {
		t.Fatalf("Inverse(Transform(13)) = %v, want 13", back)
	}
}

func TestTransformInverseRoundTrip(t *testing.T) {
	state := models.NormalizerState{Min: 8.5, Max: 42.25}
	for _, v := range []float64{8.5, 42.25, 20, 0, 100, -3.75} {
		n, err := Transform(state, v)
		if err != nil {
			t.Fatalf("Transform(%v): %v", v, err)
		}
		back, err := Inverse(state, n)
		if err != nil {
			t.Fatalf("Inverse: %v", err)
		}
		if math.Abs(back-v) > 1e-9 {
			t.Errorf("round trip of %v came back as %v", v, back)
		}
	}
}

func TestFitNormalizerDegenerateScale(t *testing.T) {
	train := models.TrainSplit{Windows: []models.Window{
		{Input: []float64{5, 5, 5}, Target: 5},
	}}
	_, err := FitNormalizer(train)
	var scaleErr *models.DegenerateScaleError
	if !errors.As(err, &scaleErr) {
		t.Fatalf("expected DegenerateScaleError, got %v", err)
	}
	if scaleErr.Value != 5 {
		t.Errorf("degenerate value = %v, want 5", scaleErr.Value)
	}
}

func TestFitIgnoresHeldOutRanges(t *testing.T) {
	// the fitted scale must not move when val/test values change
	windows := []models.Window{
		{Input: []float64{10, 11}, Target: 12},
		{Input: []float64{11, 12}, Target: 13},
		{Input: []float64{12, 13}, Target: 14},
		{Input: []float64{13, 14}, Target: 15},
		{Input: []float64{14, 15}, Target: 16},
	}
	split, err := Split(windows, 0.2, 0.2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	before, err := FitNormalizer(split.Train)
	if err != nil {
		t.Fatalf("FitNormalizer: %v", err)
	}

	for i := range split.Test {
		split.Test[i].Target *= 1000
	}
	for i := range split.Val {
		split.Val[i].Target *= 1000
	}

	after, err := FitNormalizer(split.Train)
	if err != nil {
		t.Fatalf("FitNormalizer: %v", err)
	}
	if before != after {
		t.Fatalf("fit changed with held-out data: %+v vs %+v", before, after)
	}
}

func TestTransformWindowsLeavesRawUntouched(t *testing.T) {
	state := models.NormalizerState{Min: 0, Max: 10}
	raw := []models.Window{{Input: []float64{2, 4}, Target: 6}}

	normalized, err := TransformWindows(state, raw)
	if err != nil {
		t.Fatalf("TransformWindows: %v", err)
	}
	if raw[0].Input[0] != 2 || raw[0].Target != 6 {
		t.Fatalf("raw windows mutated: %+v", raw[0])
	}
	if normalized[0].Input[0] != 0.2 || normalized[0].Target != 0.6 {
		t.Fatalf("unexpected normalized window: %+v", normalized[0])
	}
}
