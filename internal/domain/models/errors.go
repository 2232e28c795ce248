package models

import (
	"errors"
	"fmt"
)

// ErrServiceNotReady is returned for inference calls made before the serving
// state manager reaches READY. Callers may retry later.
var ErrServiceNotReady = errors.New("service not ready: no bundle loaded")

// InsufficientDataError reports a series too short for the requested lookback.
type InsufficientDataError struct {
	Have     int
	Lookback int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d points, need more than lookback %d", e.Have, e.Lookback)
}

// MalformedSeriesError reports duplicate or non-monotonic timestamps in a
// source series. Windowing fails fast rather than emitting biased windows.
type MalformedSeriesError struct {
	Index  int
	Reason string
}

func (e *MalformedSeriesError) Error() string {
	return fmt.Sprintf("malformed series at index %d: %s", e.Index, e.Reason)
}

// DegenerateScaleError reports a normalizer fitted where min == max.
type DegenerateScaleError struct {
	Value float64
}

func (e *DegenerateScaleError) Error() string {
	return fmt.Sprintf("degenerate scale: min == max == %v", e.Value)
}

// ShapeMismatchError reports a request window whose length differs from the
// active bundle's lookback.
type ShapeMismatchError struct {
	Want int
	Got  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: expected window of length %d, got %d", e.Want, e.Got)
}

// ArchitectureMismatchError reports a snapshot whose hyperparameters disagree
// with the network being instantiated from it.
type ArchitectureMismatchError struct {
	Field string
	Want  int
	Got   int
}

func (e *ArchitectureMismatchError) Error() string {
	return fmt.Sprintf("architecture mismatch: %s expected %d, got %d", e.Field, e.Want, e.Got)
}

// LoadError reports a failed bundle load or reload from the artifact store.
type LoadError struct {
	RunID string
	Err   error
}

func (e *LoadError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("load bundle %s: %v", e.RunID, e.Err)
	}
	return fmt.Sprintf("load bundle: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
