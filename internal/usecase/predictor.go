package usecase

import (
	"context"
	"fmt"
	"time"

	"EquiCast/internal/domain/models"
	domrepo "EquiCast/internal/domain/repository"
	"EquiCast/internal/pipeline"
	"EquiCast/internal/serving"
	"EquiCast/pkg/logger"
)

// Predictor serves next-close forecasts against whatever bundle the serving
// manager currently holds. The bundle's normalizer, not a fresh fit, scales
// the request window, so serving math matches training math exactly.
type Predictor struct {
	manager *serving.Manager
	store   domrepo.SeriesStore
	metrics domrepo.Metrics
	logger  *logger.Logger
}

func NewPredictor(manager *serving.Manager, store domrepo.SeriesStore, metrics domrepo.Metrics, log *logger.Logger) *Predictor {
	return &Predictor{manager: manager, store: store, metrics: metrics, logger: log}
}

// Predict forecasts the next close from an explicit window of raw prices.
// The window length must equal the active bundle's lookback.
func (uc *Predictor) Predict(ctx context.Context, req *models.PredictRequest) (*models.PredictResponse, error) {
	start := time.Now()

	active, err := uc.manager.Active()
	if err != nil {
		uc.metrics.RecordPrediction(req.Symbol, "not_ready")
		return nil, err
	}
	bundle := active.Bundle

	if len(req.Prices) != bundle.Lookback() {
		uc.metrics.RecordPrediction(req.Symbol, "shape_mismatch")
		return nil, &models.ShapeMismatchError{Want: bundle.Lookback(), Got: len(req.Prices)}
	}

	normalized, err := pipeline.TransformValues(bundle.Normalizer, req.Prices)
	if err != nil {
		uc.metrics.RecordPrediction(req.Symbol, "error")
		return nil, err
	}

	out, err := active.Net.Forward(normalized)
	if err != nil {
		uc.metrics.RecordPrediction(req.Symbol, "error")
		return nil, err
	}

	predicted, err := pipeline.Inverse(bundle.Normalizer, out)
	if err != nil {
		uc.metrics.RecordPrediction(req.Symbol, "error")
		return nil, err
	}

	last := req.Prices[len(req.Prices)-1]
	var changePct float64
	if last != 0 {
		// stored series can carry a zero close even though the POST path
		// rejects one; leave the field at zero rather than divide
		changePct = (predicted - last) / last * 100
	}
	resp := &models.PredictResponse{
		Symbol:        req.Symbol,
		RunID:         bundle.Snapshot.RunID,
		LastPrice:     last,
		Predicted:     predicted,
		ChangePercent: changePct,
		LatencyMS:     float64(time.Since(start).Microseconds()) / 1000,
	}

	uc.metrics.RecordPrediction(req.Symbol, "ok")
	uc.metrics.RecordPredictionValue(req.Symbol, predicted)
	uc.metrics.RecordLatency("predict", time.Since(start).Seconds())

	uc.logger.Info("prediction served",
		logger.String("symbol", req.Symbol),
		logger.String("run_id", resp.RunID),
		logger.Float64("predicted", resp.Predicted),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return resp, nil
}

// PredictNext pulls the most recent lookback closes from storage and
// forecasts the next close, so callers do not need to supply a window.
func (uc *Predictor) PredictNext(ctx context.Context, symbol string) (*models.PredictResponse, error) {
	active, err := uc.manager.Active()
	if err != nil {
		uc.metrics.RecordPrediction(symbol, "not_ready")
		return nil, err
	}
	lookback := active.Bundle.Lookback()

	prices, err := uc.store.RecentPrices(ctx, symbol, lookback)
	if err != nil {
		uc.metrics.RecordError("series_store")
		return nil, fmt.Errorf("recent prices for %s: %w", symbol, err)
	}
	if len(prices) < lookback {
		uc.metrics.RecordPrediction(symbol, "insufficient_data")
		return nil, &models.InsufficientDataError{Have: len(prices), Lookback: lookback}
	}

	return uc.Predict(ctx, &models.PredictRequest{Symbol: symbol, Prices: prices})
}
