package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"EquiCast/internal/serving"
	"EquiCast/internal/usecase"
	pkgch "EquiCast/pkg/clickhouse"
	"EquiCast/pkg/config"
	xhttp "EquiCast/pkg/http"
	pkgkafka "EquiCast/pkg/kafka"
	applogger "EquiCast/pkg/logger"
	"EquiCast/pkg/queue"
)

// App encapsulates the serving process lifecycle: bundle load, market data
// collection, activation consumer, retrain queue workers, and the HTTP API.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	manager    *serving.Manager
	collector  *usecase.SeriesCollector
	consumer   *pkgkafka.Consumer
	activation *usecase.ActivationHandler
	jobs       *queue.RedisQueue
	chClient   *pkgch.Client
	handler    xhttp.Handler
	httpServer *xhttp.Server
}

// New assembles the app from its wired components. consumer, collector, and
// jobs may be nil when the corresponding subsystem is disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	manager *serving.Manager,
	collector *usecase.SeriesCollector,
	consumer *pkgkafka.Consumer,
	activation *usecase.ActivationHandler,
	jobs *queue.RedisQueue,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		manager:    manager,
		collector:  collector,
		consumer:   consumer,
		activation: activation,
		jobs:       jobs,
		chClient:   chClient,
		handler:    handler,
	}
}

// Run starts every subsystem and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initial bundle load. A failed load leaves the manager FAILED and the
	// API answering 503; the rest of the app still comes up so retrains can
	// be enqueued, and the first activation event (or POST /api/reload)
	// brings the replica to READY.
	if err := a.manager.Load(ctx); err != nil {
		a.log.Error("startup bundle load failed, serving unavailable", applogger.Error(err))
	}

	if a.collector != nil && a.cfg.MarketData.Enabled {
		if err := a.collector.Start(ctx); err != nil {
			a.log.Error("collector start error", applogger.Error(err))
		} else {
			a.log.Info("collector started", applogger.Strings("symbols", a.cfg.MarketData.Symbols))
		}
	}

	if a.consumer != nil && a.activation != nil {
		a.consumer.RegisterHandler(a.activation)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
		} else {
			a.log.Info("activation consumer started", applogger.String("topic", a.activation.Topic()))
		}
	}

	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			a.log.Error("queue start error", applogger.Error(err))
		} else {
			a.log.Info("retrain queue workers started", applogger.Int("workers", a.cfg.Queue.Workers))
		}
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops subsystems in reverse start order.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.jobs != nil {
		if err := a.jobs.Stop(shutdownCtx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	a.manager.Shutdown()

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
