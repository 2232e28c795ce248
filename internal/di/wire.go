//go:build wireinject
// +build wireinject

package di

import (
	"EquiCast/pkg/config"
	"EquiCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideSeriesStore,
		ProvideArtifactStore,
		ProvideTracker,
		ProvideActivationNotifier,
		ProvideMarketStream,

		// Serving and use cases
		ProvideServingManager,
		ProvideSeriesCollector,
		ProvidePredictor,
		ProvideTrainRun,
		ProvideRedisQueue,
		ProvideActivationHandler,

		// HTTP
		ProvideHTTPHandler,

		// App
		ProvideApp,
	)
	return nil, nil
}
