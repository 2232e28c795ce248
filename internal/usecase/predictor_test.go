package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"EquiCast/internal/domain/models"
	"EquiCast/internal/model"
	"EquiCast/internal/pipeline"
	"EquiCast/internal/serving"
	"EquiCast/pkg/logger"
)

type memArtifacts struct {
	bundles map[string]*models.ServingBundle
	active  string
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{bundles: map[string]*models.ServingBundle{}}
}

func (s *memArtifacts) SaveBundle(ctx context.Context, b *models.ServingBundle) error {
	copied := *b
	s.bundles[b.Snapshot.RunID] = &copied
	return nil
}

func (s *memArtifacts) SetActive(ctx context.Context, runID string) error {
	if _, ok := s.bundles[runID]; !ok {
		return errors.New("unknown run")
	}
	s.active = runID
	return nil
}

func (s *memArtifacts) LoadActive(ctx context.Context) (*models.ServingBundle, error) {
	b, ok := s.bundles[s.active]
	if !ok {
		return nil, errors.New("no active bundle")
	}
	copied := *b
	return &copied, nil
}

type countingMetrics struct {
	outcomes map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: map[string]int{}}
}

func (m *countingMetrics) RecordPrediction(symbol, outcome string)        { m.outcomes[outcome]++ }
func (m *countingMetrics) RecordPredictionValue(symbol string, v float64) {}
func (m *countingMetrics) RecordLatency(op string, seconds float64)       {}
func (m *countingMetrics) RecordError(kind string)                        {}
func (m *countingMetrics) RecordServingState(state string)                {}

type memSeries struct {
	prices map[string][]float64
}

func (s *memSeries) Series(ctx context.Context, symbol string, from, to time.Time) (*models.Series, error) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := &models.Series{Symbol: symbol}
	for i, p := range s.prices[symbol] {
		out.Points = append(out.Points, models.PricePoint{Timestamp: base.AddDate(0, 0, i), Price: p})
	}
	return out, nil
}

func (s *memSeries) RecentPrices(ctx context.Context, symbol string, n int) ([]float64, error) {
	all := s.prices[symbol]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return append([]float64(nil), all...), nil
}

func (s *memSeries) InsertClose(ctx context.Context, p *models.PricePoint, symbol string) error {
	s.prices[symbol] = append(s.prices[symbol], p.Price)
	return nil
}

func (s *memSeries) Health(ctx context.Context) error { return nil }

func quietLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func readyManager(t *testing.T, lookback int) (*serving.Manager, *models.ServingBundle) {
	t.Helper()
	params := models.Hyperparams{Lookback: lookback, HiddenSize: 6, Layers: 2, Dropout: 0}
	net := model.NewNetwork(params, 3)
	bundle := &models.ServingBundle{
		Snapshot:   net.Snapshot("run-1", 1),
		Normalizer: models.NormalizerState{Min: 10, Max: 20},
	}

	artifacts := newMemArtifacts()
	if err := artifacts.SaveBundle(context.Background(), bundle); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}
	if err := artifacts.SetActive(context.Background(), "run-1"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	manager := serving.NewManager(artifacts, newCountingMetrics(), quietLogger(t))
	if err := manager.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return manager, bundle
}

func TestPredictMatchesPipelineMath(t *testing.T) {
	manager, bundle := readyManager(t, 4)
	metrics := newCountingMetrics()
	uc := NewPredictor(manager, &memSeries{prices: map[string][]float64{}}, metrics, quietLogger(t))

	prices := []float64{12, 13, 14, 15}
	resp, err := uc.Predict(context.Background(), &models.PredictRequest{Symbol: "TEST", Prices: prices})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	// same math by hand through the pipeline and the restored network
	normalized, err := pipeline.TransformValues(bundle.Normalizer, prices)
	if err != nil {
		t.Fatalf("TransformValues: %v", err)
	}
	net, err := model.FromSnapshot(&bundle.Snapshot)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	out, err := net.Forward(normalized)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	want, err := pipeline.Inverse(bundle.Normalizer, out)
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}

	if math.Abs(resp.Predicted-want) > 1e-12 {
		t.Fatalf("Predicted = %v, want %v", resp.Predicted, want)
	}
	if resp.RunID != "run-1" {
		t.Errorf("RunID = %s", resp.RunID)
	}
	if resp.LastPrice != 15 {
		t.Errorf("LastPrice = %v", resp.LastPrice)
	}
	wantChange := (want - 15) / 15 * 100
	if math.Abs(resp.ChangePercent-wantChange) > 1e-9 {
		t.Errorf("ChangePercent = %v, want %v", resp.ChangePercent, wantChange)
	}
	if metrics.outcomes["ok"] != 1 {
		t.Errorf("ok outcome not recorded: %v", metrics.outcomes)
	}
}

func TestPredictShapeMismatch(t *testing.T) {
	manager, _ := readyManager(t, 4)
	metrics := newCountingMetrics()
	uc := NewPredictor(manager, &memSeries{prices: map[string][]float64{}}, metrics, quietLogger(t))

	_, err := uc.Predict(context.Background(), &models.PredictRequest{Symbol: "TEST", Prices: []float64{1, 2}})
	var shapeErr *models.ShapeMismatchError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected ShapeMismatchError, got %v", err)
	}
	if metrics.outcomes["shape_mismatch"] != 1 {
		t.Errorf("shape_mismatch not recorded: %v", metrics.outcomes)
	}
}

func TestPredictNotReady(t *testing.T) {
	manager := serving.NewManager(newMemArtifacts(), newCountingMetrics(), quietLogger(t))
	metrics := newCountingMetrics()
	uc := NewPredictor(manager, &memSeries{prices: map[string][]float64{}}, metrics, quietLogger(t))

	_, err := uc.Predict(context.Background(), &models.PredictRequest{Symbol: "TEST", Prices: []float64{1, 2, 3, 4}})
	if !errors.Is(err, models.ErrServiceNotReady) {
		t.Fatalf("expected ErrServiceNotReady, got %v", err)
	}
	if metrics.outcomes["not_ready"] != 1 {
		t.Errorf("not_ready not recorded: %v", metrics.outcomes)
	}
}

func TestPredictNextUsesStoredPrices(t *testing.T) {
	manager, _ := readyManager(t, 4)
	metrics := newCountingMetrics()
	store := &memSeries{prices: map[string][]float64{
		"TEST": {10, 11, 12, 13, 14, 15},
	}}
	uc := NewPredictor(manager, store, metrics, quietLogger(t))

	resp, err := uc.PredictNext(context.Background(), "TEST")
	if err != nil {
		t.Fatalf("PredictNext: %v", err)
	}
	if resp.LastPrice != 15 {
		t.Fatalf("LastPrice = %v, want 15 (latest close)", resp.LastPrice)
	}
}

func TestPredictNextZeroLastClose(t *testing.T) {
	// stored series bypass the request validator, so a zero close must not
	// turn ChangePercent into Inf/NaN
	manager, _ := readyManager(t, 4)
	store := &memSeries{prices: map[string][]float64{
		"TEST": {12, 13, 14, 0},
	}}
	uc := NewPredictor(manager, store, newCountingMetrics(), quietLogger(t))

	resp, err := uc.PredictNext(context.Background(), "TEST")
	if err != nil {
		t.Fatalf("PredictNext: %v", err)
	}
	if resp.LastPrice != 0 {
		t.Fatalf("LastPrice = %v, want 0", resp.LastPrice)
	}
	if resp.ChangePercent != 0 {
		t.Fatalf("ChangePercent = %v, want 0 for zero last close", resp.ChangePercent)
	}
	if math.IsNaN(resp.Predicted) || math.IsInf(resp.Predicted, 0) {
		t.Fatalf("Predicted = %v", resp.Predicted)
	}
}

func TestPredictNextInsufficientHistory(t *testing.T) {
	manager, _ := readyManager(t, 4)
	store := &memSeries{prices: map[string][]float64{"TEST": {10, 11}}}
	uc := NewPredictor(manager, store, newCountingMetrics(), quietLogger(t))

	_, err := uc.PredictNext(context.Background(), "TEST")
	var dataErr *models.InsufficientDataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if dataErr.Have != 2 || dataErr.Lookback != 4 {
		t.Errorf("error fields = %+v", dataErr)
	}
}
