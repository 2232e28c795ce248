package di

import (
	"context"
	"fmt"
	"time"

	"EquiCast/internal/domain/repository"
	"EquiCast/internal/handler/api"
	internalrepo "EquiCast/internal/repository"
	"EquiCast/internal/service/marketdata"
	"EquiCast/internal/service/ratelimit"
	"EquiCast/internal/serving"
	"EquiCast/internal/usecase"
	pkgch "EquiCast/pkg/clickhouse"
	"EquiCast/pkg/config"
	xhttp "EquiCast/pkg/http"
	pkgkafka "EquiCast/pkg/kafka"
	applogger "EquiCast/pkg/logger"
	"EquiCast/pkg/metrics"
	"EquiCast/pkg/queue"
	"EquiCast/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the process logger. Production gets JSON output.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates the shared Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the activation-event consumer.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideSeriesStore creates the ClickHouse close-price store.
func ProvideSeriesStore(chClient *pkgch.Client, log *applogger.Logger) repository.SeriesStore {
	store := internalrepo.NewCHSeriesStore(chClient)
	store.SetLogger(log)
	return store
}

// ProvideArtifactStore creates the filesystem bundle store.
func ProvideArtifactStore(cfg *config.Config, log *applogger.Logger) (repository.ArtifactStore, error) {
	return internalrepo.NewFSArtifactStore(cfg.Artifacts.Dir, log)
}

// ProvideTracker fans run records out to Kafka and the ClickHouse run log.
func ProvideTracker(producer *pkgkafka.Producer, chClient *pkgch.Client, cfg *config.Config, log *applogger.Logger) repository.ExperimentTracker {
	return internalrepo.NewMultiTracker(log,
		internalrepo.NewKafkaTracker(producer, cfg.Kafka.RunsTopic),
		internalrepo.NewCHRunLog(chClient),
	)
}

// ProvideActivationNotifier broadcasts bundle activations.
func ProvideActivationNotifier(producer *pkgkafka.Producer, cfg *config.Config) usecase.ActivationNotifier {
	return internalrepo.NewKafkaActivations(producer, cfg.Kafka.ActivationTopic)
}

// ProvideMarketStream creates the trade WebSocket stream.
func ProvideMarketStream(cfg *config.Config, log *applogger.Logger) repository.MarketStream {
	return marketdata.New(
		cfg.MarketData.APIKey,
		cfg.MarketData.WebSocketURL,
		cfg.MarketData.Symbols,
		cfg.MarketData.ReconnectDelay,
		cfg.MarketData.PingInterval,
		log,
	)
}

// ProvideServingManager creates the bundle lifecycle manager.
func ProvideServingManager(store repository.ArtifactStore, m repository.Metrics, log *applogger.Logger) *serving.Manager {
	return serving.NewManager(store, m, log)
}

// ProvideSeriesCollector creates the tick-to-daily-close collector.
func ProvideSeriesCollector(stream repository.MarketStream, store repository.SeriesStore, m repository.Metrics, log *applogger.Logger) *usecase.SeriesCollector {
	return usecase.NewSeriesCollector(stream, store, m, log)
}

// ProvidePredictor creates the inference usecase.
func ProvidePredictor(manager *serving.Manager, store repository.SeriesStore, m repository.Metrics, log *applogger.Logger) *usecase.Predictor {
	return usecase.NewPredictor(manager, store, m, log)
}

// ProvideTrainRun creates the training orchestrator.
func ProvideTrainRun(
	store repository.SeriesStore,
	artifact repository.ArtifactStore,
	tracker repository.ExperimentTracker,
	notifier usecase.ActivationNotifier,
	cfg *config.Config,
	log *applogger.Logger,
) *usecase.TrainRun {
	return usecase.NewTrainRun(store, artifact, tracker, notifier, cfg, log)
}

// ProvideRedisQueue creates the retrain job queue with its worker pool and
// registers the retrain job.
func ProvideRedisQueue(cfg *config.Config, runner *usecase.TrainRun, log *applogger.Logger) *queue.RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.Addr,
		Password: cfg.Queue.Password,
		DB:       cfg.Queue.DB,
	})
	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, client, queue.ModeProducerConsumer)
	q.RegisterJob(usecase.NewRetrainJob(runner, log))
	return q
}

// ProvideActivationHandler creates the reload-on-activation consumer handler.
func ProvideActivationHandler(cfg *config.Config, manager *serving.Manager, log *applogger.Logger) *usecase.ActivationHandler {
	return usecase.NewActivationHandler(cfg.Kafka.ActivationTopic, manager, log)
}

// ProvideHTTPHandler assembles the API route registrar.
func ProvideHTTPHandler(
	log *applogger.Logger,
	predictor *usecase.Predictor,
	manager *serving.Manager,
	jobs *queue.RedisQueue,
	store repository.SeriesStore,
	stream repository.MarketStream,
	cfg *config.Config,
) xhttp.Handler {
	limiter := ratelimit.New()
	predict := api.NewPredictEchoHandler(log, predictor, manager, jobs, limiter, cfg)
	health := api.NewHealthEchoHandler(manager, store, stream)
	return api.NewRoutes(predict, health)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	manager *serving.Manager,
	collector *usecase.SeriesCollector,
	consumer *pkgkafka.Consumer,
	activation *usecase.ActivationHandler,
	jobs *queue.RedisQueue,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, log, manager, collector, consumer, activation, jobs, chClient, handler)
}
