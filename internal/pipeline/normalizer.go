package pipeline

import (
	"EquiCast/internal/domain/models"
)

// FitNormalizer computes min/max over the training window inputs only.
// Targets stay out of the fit: the last training target sits one step past
// the train inputs, so observing it would leak ahead of the cut. Taking the
// TrainSplit type (not a plain window slice) keeps validation/test/inference
// data structurally out of the fit path too.
func FitNormalizer(train models.TrainSplit) (models.NormalizerState, error) {
	if len(train.Windows) == 0 {
		return models.NormalizerState{}, &models.InsufficientDataError{Have: 0, Lookback: 0}
	}

	min := train.Windows[0].Input[0]
	max := min
	for _, w := range train.Windows {
		for _, v := range w.Input {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}

	if min == max {
		return models.NormalizerState{}, &models.DegenerateScaleError{Value: min}
	}
	return models.NormalizerState{Min: min, Max: max}, nil
}

// Transform maps a value linearly into the fitted range so that
// [min,max] -> [0,1]. Values outside the fitted range map outside [0,1]
// on purpose: clamping would silently distort predictions near regime
// changes.
func Transform(state models.NormalizerState, v float64) (float64, error) {
	if state.Max == state.Min {
		return 0, &models.DegenerateScaleError{Value: state.Min}
	}
	return (v - state.Min) / (state.Max - state.Min), nil
}

// TransformValues normalizes a slice in place order, returning a new slice.
func TransformValues(state models.NormalizerState, values []float64) ([]float64, error) {
	if state.Max == state.Min {
		return nil, &models.DegenerateScaleError{Value: state.Min}
	}
	out := make([]float64, len(values))
	span := state.Max - state.Min
	for i, v := range values {
		out[i] = (v - state.Min) / span
	}
	return out, nil
}

// TransformWindows normalizes window inputs and targets, returning new
// windows and leaving the raw ones untouched.
func TransformWindows(state models.NormalizerState, windows []models.Window) ([]models.Window, error) {
	if state.Max == state.Min {
		return nil, &models.DegenerateScaleError{Value: state.Min}
	}
	span := state.Max - state.Min
	out := make([]models.Window, len(windows))
	for i, w := range windows {
		input := make([]float64, len(w.Input))
		for j, v := range w.Input {
			input[j] = (v - state.Min) / span
		}
		out[i] = models.Window{Input: input, Target: (w.Target - state.Min) / span}
	}
	return out, nil
}

// Inverse is the exact linear inverse of Transform.
func Inverse(state models.NormalizerState, v float64) (float64, error) {
	if state.Max == state.Min {
		return 0, &models.DegenerateScaleError{Value: state.Min}
	}
	return v*(state.Max-state.Min) + state.Min, nil
}
