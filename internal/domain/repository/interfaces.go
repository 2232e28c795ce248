package repository

import (
	"context"
	"time"

	"EquiCast/internal/domain/models"
)

// SeriesStore is the historical daily-close storage used by both training
// and the collector.
type SeriesStore interface {
	// Series returns closes for symbol between from and to inclusive,
	// ordered by timestamp ascending.
	Series(ctx context.Context, symbol string, from, to time.Time) (*models.Series, error)
	// RecentPrices returns the latest n closes ordered oldest-first.
	RecentPrices(ctx context.Context, symbol string, n int) ([]float64, error)
	InsertClose(ctx context.Context, point *models.PricePoint, symbol string) error
	Health(ctx context.Context) error
}

// ArtifactStore persists and retrieves matched (snapshot, normalizer)
// bundles. SetActive atomically repoints the active run.
type ArtifactStore interface {
	SaveBundle(ctx context.Context, bundle *models.ServingBundle) error
	LoadActive(ctx context.Context) (*models.ServingBundle, error)
	SetActive(ctx context.Context, runID string) error
}

// ExperimentTracker records one immutable run record per training run.
// Tracking failures never fail the run itself.
type ExperimentTracker interface {
	RecordRun(ctx context.Context, record *models.RunRecord) error
}

// MarketStream is a live trade feed delivering ticks for the subscribed
// symbols.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Metrics abstracts the prediction-path instrumentation so usecases do not
// depend on the concrete registry.
type Metrics interface {
	RecordPrediction(symbol, outcome string)
	RecordPredictionValue(symbol string, value float64)
	RecordLatency(symbol string, seconds float64)
	RecordError(kind string)
	RecordServingState(state string)
}
