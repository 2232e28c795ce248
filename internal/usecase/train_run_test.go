package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"EquiCast/internal/domain/models"
	"EquiCast/pkg/config"
)

type memTracker struct {
	records []*models.RunRecord
	err     error
}

func (t *memTracker) RecordRun(ctx context.Context, r *models.RunRecord) error {
	if t.err != nil {
		return t.err
	}
	t.records = append(t.records, r)
	return nil
}

type memNotifier struct {
	activations []string
}

func (n *memNotifier) NotifyActivation(ctx context.Context, runID, symbol string) error {
	n.activations = append(n.activations, runID)
	return nil
}

func trainConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Model.Lookback = 5
	cfg.Model.HiddenSize = 6
	cfg.Model.Layers = 1
	cfg.Model.Dropout = 0
	cfg.Training.HistoryDays = 100
	cfg.Training.Epochs = 3
	cfg.Training.BatchSize = 8
	cfg.Training.LearningRate = 0.01
	cfg.Training.TestRatio = 0.2
	cfg.Training.ValRatio = 0.2
	cfg.Training.Seed = 42
	return cfg
}

func syntheticPrices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 20 + 5*math.Sin(float64(i)/5)
	}
	return out
}

func TestTrainRunProducesActivatedBundle(t *testing.T) {
	store := &memSeries{prices: map[string][]float64{"TEST": syntheticPrices(60)}}
	artifacts := newMemArtifacts()
	tracker := &memTracker{}
	notifier := &memNotifier{}
	uc := NewTrainRun(store, artifacts, tracker, notifier, trainConfig(), quietLogger(t))

	result, err := uc.Run(context.Background(), "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Windows != 55 {
		t.Errorf("windows = %d, want 55", result.Windows)
	}
	if len(result.Epochs) != 3 {
		t.Errorf("epochs = %d, want 3", len(result.Epochs))
	}

	// the run's bundle is saved and active, with snapshot and normalizer
	// persisted together
	bundle, err := artifacts.LoadActive(context.Background())
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if bundle.Snapshot.RunID != result.RunID {
		t.Fatalf("active run = %s, want %s", bundle.Snapshot.RunID, result.RunID)
	}
	if bundle.Normalizer.Min == bundle.Normalizer.Max {
		t.Fatalf("normalizer not fitted: %+v", bundle.Normalizer)
	}
	if bundle.Snapshot.Params.Lookback != 5 {
		t.Fatalf("snapshot lookback = %d", bundle.Snapshot.Params.Lookback)
	}

	if len(tracker.records) != 1 {
		t.Fatalf("expected 1 run record, got %d", len(tracker.records))
	}
	rec := tracker.records[0]
	if rec.Params["seed"] != "42" || rec.Params["lookback"] != "5" {
		t.Errorf("record params incomplete: %v", rec.Params)
	}
	if _, ok := rec.Metrics["test_rmse"]; !ok {
		t.Errorf("record metrics missing test_rmse: %v", rec.Metrics)
	}

	if len(notifier.activations) != 1 || notifier.activations[0] != result.RunID {
		t.Errorf("activation not broadcast: %v", notifier.activations)
	}
}

func TestTrainRunDeterministicWeights(t *testing.T) {
	prices := syntheticPrices(60)
	runOnce := func() *models.ServingBundle {
		store := &memSeries{prices: map[string][]float64{"TEST": prices}}
		artifacts := newMemArtifacts()
		uc := NewTrainRun(store, artifacts, &memTracker{}, nil, trainConfig(), quietLogger(t))
		if _, err := uc.Run(context.Background(), "TEST"); err != nil {
			t.Fatalf("Run: %v", err)
		}
		b, err := artifacts.LoadActive(context.Background())
		if err != nil {
			t.Fatalf("LoadActive: %v", err)
		}
		return b
	}

	a := runOnce()
	b := runOnce()

	if a.Normalizer != b.Normalizer {
		t.Fatalf("normalizers differ: %+v vs %+v", a.Normalizer, b.Normalizer)
	}
	wxA := a.Snapshot.Layers[0].WX
	wxB := b.Snapshot.Layers[0].WX
	for i := range wxA {
		if wxA[i] != wxB[i] {
			t.Fatalf("weights differ at %d with identical seed and data", i)
		}
	}
}

func TestTrainRunTrackerFailureDoesNotFailRun(t *testing.T) {
	store := &memSeries{prices: map[string][]float64{"TEST": syntheticPrices(60)}}
	artifacts := newMemArtifacts()
	tracker := &memTracker{err: errors.New("broker down")}
	uc := NewTrainRun(store, artifacts, tracker, nil, trainConfig(), quietLogger(t))

	result, err := uc.Run(context.Background(), "TEST")
	if err != nil {
		t.Fatalf("Run should survive tracker failure: %v", err)
	}
	if _, err := artifacts.LoadActive(context.Background()); err != nil {
		t.Fatalf("bundle should still be active: %v", err)
	}
	if result.RunID == "" {
		t.Fatalf("missing run id")
	}
}

func TestTrainRunInsufficientHistory(t *testing.T) {
	store := &memSeries{prices: map[string][]float64{"TEST": {1, 2, 3}}}
	uc := NewTrainRun(store, newMemArtifacts(), &memTracker{}, nil, trainConfig(), quietLogger(t))

	_, err := uc.Run(context.Background(), "TEST")
	var dataErr *models.InsufficientDataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}

func TestTrainRunFlatSeries(t *testing.T) {
	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 7
	}
	store := &memSeries{prices: map[string][]float64{"TEST": flat}}
	uc := NewTrainRun(store, newMemArtifacts(), &memTracker{}, nil, trainConfig(), quietLogger(t))

	_, err := uc.Run(context.Background(), "TEST")
	var scaleErr *models.DegenerateScaleError
	if !errors.As(err, &scaleErr) {
		t.Fatalf("expected DegenerateScaleError, got %v", err)
	}
}
