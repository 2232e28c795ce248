package usecase

import (
	"context"
	"sync"
	"time"

	"EquiCast/internal/domain/models"
	domrepo "EquiCast/internal/domain/repository"
	"EquiCast/pkg/logger"
	"EquiCast/pkg/util"
)

// SeriesCollector folds live ticks into daily closes. It keeps the latest
// tick per (symbol, day) in memory and flushes it periodically; the storage
// engine replaces earlier rows for the same day, so the last flushed price
// of a day is that day's close.
type SeriesCollector struct {
	stream  domrepo.MarketStream
	store   domrepo.SeriesStore
	metrics domrepo.Metrics
	logger  *logger.Logger

	flushEvery time.Duration

	mu    sync.Mutex
	dirty map[string]models.PricePoint // symbol -> latest tick of its current day

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSeriesCollector(stream domrepo.MarketStream, store domrepo.SeriesStore, metrics domrepo.Metrics, log *logger.Logger) *SeriesCollector {
	return &SeriesCollector{
		stream:     stream,
		store:      store,
		metrics:    metrics,
		logger:     log,
		flushEvery: time.Minute,
		dirty:      make(map[string]models.PricePoint),
	}
}

// IsConnected reports whether the underlying stream is connected.
func (c *SeriesCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *SeriesCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	tickCh, errCh := c.stream.Read(runCtx)
	go c.consume(runCtx, tickCh, errCh)
	return nil
}

func (c *SeriesCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	defer close(c.done)
	flush := time.NewTicker(c.flushEvery)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flushAll(context.Background())
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				c.logger.Warn("market stream error, reconnecting", logger.Error(err))
				_ = c.stream.Reconnect(ctx)
			}
		case t := <-tickCh:
			if t == nil {
				continue
			}
			c.observe(ctx, t)
		case <-flush.C:
			c.flushAll(ctx)
		}
	}
}

// observe records the tick as the running close of its UTC day. A tick that
// opens a new day first flushes the previous day's final close.
func (c *SeriesCollector) observe(ctx context.Context, t *models.Tick) {
	day := util.DayOf(t.Timestamp)

	c.mu.Lock()
	prev, ok := c.dirty[t.Symbol]
	c.dirty[t.Symbol] = models.PricePoint{Timestamp: day, Price: t.Price}
	c.mu.Unlock()

	if ok && prev.Timestamp.Before(day) {
		if err := c.store.InsertClose(ctx, &prev, t.Symbol); err != nil {
			c.metrics.RecordError("series_store")
			c.logger.Error("persist day close failed",
				logger.String("symbol", t.Symbol),
				logger.Error(err),
			)
		}
	}
}

// flushAll upserts the running close of every dirty symbol.
func (c *SeriesCollector) flushAll(ctx context.Context) {
	c.mu.Lock()
	pending := make(map[string]models.PricePoint, len(c.dirty))
	for sym, p := range c.dirty {
		pending[sym] = p
	}
	c.mu.Unlock()

	for sym, p := range pending {
		point := p
		if err := c.store.InsertClose(ctx, &point, sym); err != nil {
			c.metrics.RecordError("series_store")
			c.logger.Error("flush close failed",
				logger.String("symbol", sym),
				logger.Error(err),
			)
		}
	}
}

// Shutdown stops consumption, flushes pending closes, and closes the stream.
func (c *SeriesCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
		select {
		case <-c.done:
		case <-ctx.Done():
		}
	}
	return c.stream.Close()
}
