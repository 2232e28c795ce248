package main

import (
	"context"
	"flag"
	"log"
	"os"

	"EquiCast/internal/di"
	"EquiCast/pkg/config"
	applogger "EquiCast/pkg/logger"
)

// Runs one training run for a symbol and activates the resulting bundle.
// Serving instances pick the new bundle up via the activation topic.
func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	symbol := flag.String("symbol", "", "symbol to train (default: training.symbol from config)")
	epochs := flag.Int("epochs", 0, "override training epochs")
	seed := flag.Int64("seed", 0, "override training seed")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *symbol == "" {
		*symbol = cfg.Training.Symbol
	}
	if *epochs > 0 {
		cfg.Training.Epochs = *epochs
	}
	if *seed != 0 {
		cfg.Training.Seed = *seed
	}
	if *symbol == "" {
		log.Fatal("symbol required: pass -symbol or set training.symbol")
	}

	logger, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	chClient, err := di.ProvideClickHouseClient(cfg)
	if err != nil {
		log.Fatalf("clickhouse init failed: %v", err)
	}
	defer chClient.Close()

	producer, err := di.ProvideKafkaProducer(cfg)
	if err != nil {
		log.Fatalf("kafka producer init failed: %v", err)
	}
	defer producer.Close()

	store := di.ProvideSeriesStore(chClient, logger)
	artifacts, err := di.ProvideArtifactStore(cfg, logger)
	if err != nil {
		log.Fatalf("artifact store init failed: %v", err)
	}
	tracker := di.ProvideTracker(producer, chClient, cfg, logger)
	notifier := di.ProvideActivationNotifier(producer, cfg)
	runner := di.ProvideTrainRun(store, artifacts, tracker, notifier, cfg, logger)

	result, err := runner.Run(context.Background(), *symbol)
	if err != nil {
		logger.Error("training run failed", applogger.Error(err))
		os.Exit(1)
	}

	logger.Info("run complete",
		applogger.String("run_id", result.RunID),
		applogger.Int("windows", result.Windows),
		applogger.Float64("test_rmse", result.Test.RMSE),
		applogger.Float64("test_mae", result.Test.MAE),
		applogger.Float64("test_mape", result.Test.MAPE),
	)
}
