package pipeline

import (
	"fmt"

	"EquiCast/internal/domain/models"
)

// Split partitions windows into contiguous train/val/test ranges in temporal
// order. The trailing testRatio share becomes the test set; valRatio of the
// remainder becomes validation. No shuffling ever crosses a boundary — the
// no-leakage property of the whole pipeline rests on this ordering.
func Split(windows []models.Window, testRatio, valRatio float64) (*models.SplitWindows, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("split: no windows")
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, fmt.Errorf("split: test ratio %v out of (0,1)", testRatio)
	}
	if valRatio < 0 || valRatio >= 1 {
		return nil, fmt.Errorf("split: val ratio %v out of [0,1)", valRatio)
	}

	trainValEnd := int(float64(len(windows)) * (1 - testRatio))
	trainEnd := int(float64(trainValEnd) * (1 - valRatio))
	if trainEnd < 1 {
		return nil, fmt.Errorf("split: training range empty for %d windows", len(windows))
	}

	return &models.SplitWindows{
		Train:    models.TrainSplit{Windows: windows[:trainEnd]},
		Val:      windows[trainEnd:trainValEnd],
		Test:     windows[trainValEnd:],
		TrainEnd: trainEnd,
		ValEnd:   trainValEnd,
	}, nil
}
