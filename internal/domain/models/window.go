package models

// Window is one lookback-length input slice plus its one-step-ahead target.
// Input holds raw (or normalized, depending on stage) prices in temporal
// order; Target is the price immediately following the window.
type Window struct {
	Input  []float64
	Target float64
}

// TrainSplit wraps the training-range windows. The normalizer fits only on
// this type so validation/test windows can never reach the fit path.
type TrainSplit struct {
	Windows []Window
}

// SplitWindows is the contiguous temporal partition of a window sequence.
// Train precedes Val precedes Test; there is no shuffling across boundaries.
type SplitWindows struct {
	Train TrainSplit
	Val   []Window
	Test  []Window

	// Boundary indexes into the original window sequence, recorded for the
	// experiment tracker: Train covers [0,TrainEnd), Val [TrainEnd,ValEnd),
	// Test [ValEnd,len).
	TrainEnd int
	ValEnd   int
}
