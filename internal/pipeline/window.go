package pipeline

import (
	"EquiCast/internal/domain/models"
)

// BuildWindows slices a series into fixed-length overlapping input windows
// with one-step-ahead targets, sliding by one. The final window whose target
// would exceed the series end is dropped, so the count is len(series)-lookback.
//
// Windowing is structural and deterministic: identical input always yields
// identical windows, and ordering is the source series ordering.
func BuildWindows(series *models.Series, lookback int) ([]models.Window, error) {
	if lookback < 1 {
		return nil, &models.InsufficientDataError{Have: series.Len(), Lookback: lookback}
	}
	if err := validateSeries(series); err != nil {
		return nil, err
	}
	if series.Len() <= lookback {
		return nil, &models.InsufficientDataError{Have: series.Len(), Lookback: lookback}
	}

	prices := series.Prices()
	windows := make([]models.Window, 0, len(prices)-lookback)
	for i := 0; i+lookback < len(prices); i++ {
		input := make([]float64, lookback)
		copy(input, prices[i:i+lookback])
		windows = append(windows, models.Window{
			Input:  input,
			Target: prices[i+lookback],
		})
	}
	return windows, nil
}

// validateSeries rejects duplicate or non-monotonic timestamps. A corrupted
// ordering would silently bias every window downstream, so this fails fast.
func validateSeries(series *models.Series) error {
	for i := 1; i < len(series.Points); i++ {
		prev := series.Points[i-1].Timestamp
		cur := series.Points[i].Timestamp
		if cur.Equal(prev) {
			return &models.MalformedSeriesError{Index: i, Reason: "duplicate timestamp"}
		}
		if cur.Before(prev) {
			return &models.MalformedSeriesError{Index: i, Reason: "timestamps not strictly increasing"}
		}
	}
	return nil
}
