package usecase

import (
	"context"
	"fmt"

	"EquiCast/internal/domain/models"
	"EquiCast/pkg/logger"
	"EquiCast/pkg/queue"
)

// MsgTypeRetrain is the queue message type carrying retrain requests.
const MsgTypeRetrain = "retrain"

// RetrainPayload is the queue message body for one retrain request.
type RetrainPayload struct {
	Symbol string `json:"symbol"`
}

// RetrainJob consumes retrain requests off the queue and runs full training
// runs. Training is heavy, so it happens on queue workers rather than on the
// HTTP request path; the endpoint only enqueues.
type RetrainJob struct {
	runner *TrainRun
	logger *logger.Logger
}

func NewRetrainJob(runner *TrainRun, log *logger.Logger) *RetrainJob {
	return &RetrainJob{runner: runner, logger: log}
}

func (j *RetrainJob) Name() string { return "retrain_job" }
func (j *RetrainJob) Type() string { return MsgTypeRetrain }

func (j *RetrainJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[RetrainPayload](payload)
	if err != nil {
		return fmt.Errorf("parse retrain payload: %w", err)
	}
	if req.Symbol == "" {
		return fmt.Errorf("retrain payload: symbol required")
	}

	result, err := j.runner.Run(ctx, req.Symbol)
	if err != nil {
		j.logger.Error("retrain run failed",
			logger.String("symbol", req.Symbol),
			logger.Error(err),
		)
		return err
	}

	j.logger.Info("retrain run activated",
		logger.String("run_id", result.RunID),
		logger.String("symbol", result.Symbol),
		logger.Float64("test_rmse", result.Test.RMSE),
	)
	return nil
}

// EnqueueRetrain validates and enqueues one retrain request.
func EnqueueRetrain(ctx context.Context, q queue.QueueService, req *models.RetrainRequest) error {
	return q.PublishMessage(ctx, MsgTypeRetrain, RetrainPayload{Symbol: req.Symbol})
}
