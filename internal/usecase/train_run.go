package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"EquiCast/internal/domain/models"
	domrepo "EquiCast/internal/domain/repository"
	"EquiCast/internal/model"
	"EquiCast/internal/pipeline"
	"EquiCast/pkg/config"
	"EquiCast/pkg/logger"
	"EquiCast/pkg/util"
)

// TrainRun orchestrates one training run end to end: load history, window,
// split, fit the normalizer on the training split only, train, evaluate on
// the held-out test range, persist the matched bundle, and record the run.
type TrainRun struct {
	store    domrepo.SeriesStore
	artifact domrepo.ArtifactStore
	tracker  domrepo.ExperimentTracker
	notifier ActivationNotifier
	cfg      *config.Config
	logger   *logger.Logger
}

// ActivationNotifier broadcasts that a run became active so serving
// instances can hot-swap. Nil disables broadcasting.
type ActivationNotifier interface {
	NotifyActivation(ctx context.Context, runID, symbol string) error
}

func NewTrainRun(store domrepo.SeriesStore, artifact domrepo.ArtifactStore, tracker domrepo.ExperimentTracker, notifier ActivationNotifier, cfg *config.Config, log *logger.Logger) *TrainRun {
	return &TrainRun{store: store, artifact: artifact, tracker: tracker, notifier: notifier, cfg: cfg, logger: log}
}

// RunResult is returned to the caller; the same numbers go to the tracker.
type RunResult struct {
	RunID   string
	Symbol  string
	Windows int
	Epochs  []model.EpochStats
	Test    pipeline.EvalMetrics
}

// Run executes one training run for symbol and activates the resulting
// bundle. A tracker failure is logged but never fails the run.
func (uc *TrainRun) Run(ctx context.Context, symbol string) (*RunResult, error) {
	if timeout := uc.cfg.Training.RunTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	startedAt := time.Now().UTC()
	runID := fmt.Sprintf("%s-%s", sanitizeID(symbol), startedAt.Format("20060102T150405Z"))
	uc.logger.Info("training run started",
		logger.String("run_id", runID),
		logger.String("symbol", symbol),
	)

	from, to := util.DayRange(startedAt.AddDate(0, 0, -uc.cfg.Training.HistoryDays), startedAt)
	series, err := uc.store.Series(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}

	params := models.Hyperparams{
		Lookback:   uc.cfg.Model.Lookback,
		HiddenSize: uc.cfg.Model.HiddenSize,
		Layers:     uc.cfg.Model.Layers,
		Dropout:    uc.cfg.Model.Dropout,
	}

	windows, err := pipeline.BuildWindows(series, params.Lookback)
	if err != nil {
		return nil, err
	}
	split, err := pipeline.Split(windows, uc.cfg.Training.TestRatio, uc.cfg.Training.ValRatio)
	if err != nil {
		return nil, err
	}

	// Scale comes from the training range alone; val/test stay out of the fit.
	norm, err := pipeline.FitNormalizer(split.Train)
	if err != nil {
		return nil, err
	}
	trainN, err := pipeline.TransformWindows(norm, split.Train.Windows)
	if err != nil {
		return nil, err
	}
	valN, err := pipeline.TransformWindows(norm, split.Val)
	if err != nil {
		return nil, err
	}
	testN, err := pipeline.TransformWindows(norm, split.Test)
	if err != nil {
		return nil, err
	}

	net := model.NewNetwork(params, uc.cfg.Training.Seed)
	trainer := model.NewTrainer(net, model.TrainerConfig{
		Epochs:       uc.cfg.Training.Epochs,
		BatchSize:    uc.cfg.Training.BatchSize,
		LearningRate: uc.cfg.Training.LearningRate,
		Dropout:      params.Dropout,
		Seed:         uc.cfg.Training.Seed,
	}, uc.logger)

	epochs, err := trainer.Train(ctx, models.TrainSplit{Windows: trainN}, valN)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	test, err := uc.evaluate(net, norm, testN, split.Test)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	snap := net.Snapshot(runID, 1)
	snap.CreatedAt = startedAt
	bundle := &models.ServingBundle{Snapshot: snap, Normalizer: norm}
	if err := uc.artifact.SaveBundle(ctx, bundle); err != nil {
		return nil, err
	}
	if err := uc.artifact.SetActive(ctx, runID); err != nil {
		return nil, err
	}
	if uc.notifier != nil {
		if err := uc.notifier.NotifyActivation(ctx, runID, symbol); err != nil {
			uc.logger.Warn("activation broadcast failed",
				logger.String("run_id", runID),
				logger.Error(err),
			)
		}
	}

	finishedAt := time.Now().UTC()
	record := uc.buildRecord(runID, symbol, startedAt, finishedAt, series.Len(), split, epochs, test)
	if err := uc.tracker.RecordRun(ctx, record); err != nil {
		uc.logger.Warn("run record not fully tracked",
			logger.String("run_id", runID),
			logger.Error(err),
		)
	}

	uc.logger.Info("training run finished",
		logger.String("run_id", runID),
		logger.Int("windows", len(windows)),
		logger.Float64("test_rmse", test.RMSE),
		logger.Float64("test_mape", test.MAPE),
		logger.Duration("duration_ms", finishedAt.Sub(startedAt)),
	)
	return &RunResult{
		RunID:   runID,
		Symbol:  symbol,
		Windows: len(windows),
		Epochs:  epochs,
		Test:    test,
	}, nil
}

// evaluate runs the trained network over the normalized test windows and
// scores the de-normalized predictions against the raw test targets.
func (uc *TrainRun) evaluate(net *model.Network, norm models.NormalizerState, testN, testRaw []models.Window) (pipeline.EvalMetrics, error) {
	actual := make([]float64, 0, len(testRaw))
	predicted := make([]float64, 0, len(testRaw))
	for i, w := range testN {
		out, err := net.Forward(w.Input)
		if err != nil {
			return pipeline.EvalMetrics{}, err
		}
		price, err := pipeline.Inverse(norm, out)
		if err != nil {
			return pipeline.EvalMetrics{}, err
		}
		actual = append(actual, testRaw[i].Target)
		predicted = append(predicted, price)
	}
	return pipeline.Evaluate(actual, predicted), nil
}

func (uc *TrainRun) buildRecord(runID, symbol string, startedAt, finishedAt time.Time, seriesLen int, split *models.SplitWindows, epochs []model.EpochStats, test pipeline.EvalMetrics) *models.RunRecord {
	record := &models.RunRecord{
		RunID:      runID,
		Symbol:     symbol,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Params: map[string]string{
			"lookback":      strconv.Itoa(uc.cfg.Model.Lookback),
			"hidden_size":   strconv.Itoa(uc.cfg.Model.HiddenSize),
			"layers":        strconv.Itoa(uc.cfg.Model.Layers),
			"dropout":       formatFloat(uc.cfg.Model.Dropout),
			"epochs":        strconv.Itoa(uc.cfg.Training.Epochs),
			"batch_size":    strconv.Itoa(uc.cfg.Training.BatchSize),
			"learning_rate": formatFloat(uc.cfg.Training.LearningRate),
			"test_ratio":    formatFloat(uc.cfg.Training.TestRatio),
			"val_ratio":     formatFloat(uc.cfg.Training.ValRatio),
			"seed":          strconv.FormatInt(uc.cfg.Training.Seed, 10),
		},
		Metrics: map[string]float64{
			"series_points": float64(seriesLen),
			"train_windows": float64(len(split.Train.Windows)),
			"val_windows":   float64(len(split.Val)),
			"test_windows":  float64(len(split.Test)),
			"test_rmse":     test.RMSE,
			"test_mae":      test.MAE,
			"test_mape":     test.MAPE,
		},
	}
	if n := len(epochs); n > 0 {
		record.Metrics["final_train_loss"] = epochs[n-1].TrainLoss
		record.Metrics["final_val_loss"] = epochs[n-1].ValLoss
	}
	return record
}

func sanitizeID(symbol string) string {
	s := strings.ToLower(symbol)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
