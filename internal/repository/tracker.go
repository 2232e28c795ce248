package repository

import (
	"context"
	"database/sql"
	"fmt"

	"EquiCast/internal/domain/models"
	domrepo "EquiCast/internal/domain/repository"
	pkgch "EquiCast/pkg/clickhouse"
	pkgkafka "EquiCast/pkg/kafka"
	applogger "EquiCast/pkg/logger"
)

// KafkaTracker publishes one run record per training run, keyed by symbol so
// records for one instrument stay ordered within a partition.
type KafkaTracker struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaTracker(producer *pkgkafka.Producer, topic string) *KafkaTracker {
	return &KafkaTracker{producer: producer, topic: topic}
}

func (t *KafkaTracker) RecordRun(ctx context.Context, record *models.RunRecord) error {
	if err := t.producer.Publish(ctx, t.topic, []byte(record.Symbol), record); err != nil {
		return fmt.Errorf("publish run record %s: %w", record.RunID, err)
	}
	return nil
}

// KafkaActivations broadcasts activation events to serving instances.
type KafkaActivations struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaActivations(producer *pkgkafka.Producer, topic string) *KafkaActivations {
	return &KafkaActivations{producer: producer, topic: topic}
}

func (a *KafkaActivations) NotifyActivation(ctx context.Context, runID, symbol string) error {
	event := map[string]string{"run_id": runID, "symbol": symbol}
	if err := a.producer.Publish(ctx, a.topic, []byte(symbol), event); err != nil {
		return fmt.Errorf("publish activation %s: %w", runID, err)
	}
	return nil
}

// CHRunLog mirrors run records into the training_runs table so finished runs
// are queryable alongside the price history.
type CHRunLog struct {
	db *sql.DB
}

func NewCHRunLog(ch *pkgch.Client) *CHRunLog {
	return &CHRunLog{db: ch.DB()}
}

func (t *CHRunLog) RecordRun(ctx context.Context, record *models.RunRecord) error {
	const q = `
        INSERT INTO equicast.training_runs
            (run_id, symbol, started_at, finished_at, params, metrics)
        VALUES (?, ?, ?, ?, ?, ?)
    `
	_, err := t.db.ExecContext(ctx, q,
		record.RunID, record.Symbol,
		record.StartedAt, record.FinishedAt,
		record.Params, record.Metrics,
	)
	if err != nil {
		return fmt.Errorf("insert run record %s: %w", record.RunID, err)
	}
	return nil
}

// MultiTracker fans a record out to several sinks. A sink failure is logged
// and does not stop the remaining sinks; the first error is returned so the
// caller can count it, but a training run never fails on tracking alone.
type MultiTracker struct {
	sinks []domrepo.ExperimentTracker
	l     *applogger.Logger
}

func NewMultiTracker(l *applogger.Logger, sinks ...domrepo.ExperimentTracker) *MultiTracker {
	return &MultiTracker{sinks: sinks, l: l}
}

func (t *MultiTracker) RecordRun(ctx context.Context, record *models.RunRecord) error {
	var first error
	for _, sink := range t.sinks {
		if err := sink.RecordRun(ctx, record); err != nil {
			if first == nil {
				first = err
			}
			if t.l != nil {
				t.l.Warn("experiment tracker sink failed",
					applogger.String("run_id", record.RunID),
					applogger.Error(err),
				)
			}
		}
	}
	return first
}
