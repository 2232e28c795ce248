package api

import (
	"errors"
	"net/http"

	"EquiCast/internal/domain/models"
	"EquiCast/internal/service/ratelimit"
	"EquiCast/internal/serving"
	"EquiCast/internal/usecase"
	"EquiCast/pkg/config"
	xhttp "EquiCast/pkg/http"
	xlogger "EquiCast/pkg/logger"
	"EquiCast/pkg/queue"

	"github.com/labstack/echo/v4"
)

// PredictEchoHandler exposes the forecasting and lifecycle endpoints.
type PredictEchoHandler struct {
	logger    *xlogger.Logger
	predictor *usecase.Predictor
	manager   *serving.Manager
	jobs      queue.QueueService
	limiter   *ratelimit.Limiter
	cfg       *config.Config
}

func NewPredictEchoHandler(
	logger *xlogger.Logger,
	predictor *usecase.Predictor,
	manager *serving.Manager,
	jobs queue.QueueService,
	limiter *ratelimit.Limiter,
	cfg *config.Config,
) *PredictEchoHandler {
	return &PredictEchoHandler{
		logger:    logger,
		predictor: predictor,
		manager:   manager,
		jobs:      jobs,
		limiter:   limiter,
		cfg:       cfg,
	}
}

func (h *PredictEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.GET("/predict/next", h.PredictNext)
	g.POST("/retrain", h.Retrain)
	g.POST("/reload", h.Reload)
}

// Predict forecasts the next close from an explicit price window.
func (h *PredictEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.allow(c, req.Symbol) {
		return xhttp.AppErrorResponse(c, tooManyRequests())
	}

	res, err := h.predictor.Predict(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("predict usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

// PredictNext forecasts from the latest stored closes of a symbol.
func (h *PredictEchoHandler) PredictNext(c echo.Context) error {
	req := &models.PredictNextRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.allow(c, req.Symbol) {
		return xhttp.AppErrorResponse(c, tooManyRequests())
	}

	res, err := h.predictor.PredictNext(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Error("predict_next usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

// Retrain enqueues a training run. Training happens on queue workers; the
// endpoint returns as soon as the request is accepted.
func (h *PredictEchoHandler) Retrain(c echo.Context) error {
	req := &models.RetrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := usecase.EnqueueRetrain(c.Request().Context(), h.jobs, req); err != nil {
		h.logger.Error("retrain enqueue error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not enqueue retrain"))
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{
		"symbol": req.Symbol,
		"status": "enqueued",
	})
}

// Reload swaps in the currently active persisted bundle.
func (h *PredictEchoHandler) Reload(c echo.Context) error {
	if err := h.manager.Reload(c.Request().Context()); err != nil {
		h.logger.Error("reload error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}

	active, err := h.manager.Active()
	if err != nil {
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, &models.ReloadResponse{
		RunID:    active.Bundle.Snapshot.RunID,
		Version:  active.Bundle.Snapshot.Version,
		Lookback: active.Bundle.Lookback(),
	})
}

func (h *PredictEchoHandler) allow(c echo.Context, symbol string) bool {
	if h.limiter == nil || !h.cfg.RateLimit.Enabled {
		return true
	}
	key := c.RealIP() + "|" + symbol
	return h.limiter.Allow(key, h.cfg.RateLimit.Capacity, h.cfg.RateLimit.RefillPerSec)
}

func tooManyRequests() *xhttp.AppError {
	return xhttp.NewAppError("rate_limited", "", "too many requests", http.StatusTooManyRequests)
}

// mapDomainError translates pipeline and serving errors to HTTP statuses.
func mapDomainError(err error) error {
	var (
		shapeErr  *models.ShapeMismatchError
		dataErr   *models.InsufficientDataError
		seriesErr *models.MalformedSeriesError
		scaleErr  *models.DegenerateScaleError
		loadErr   *models.LoadError
	)
	switch {
	case errors.Is(err, models.ErrServiceNotReady):
		return xhttp.NewAppError("not_ready", "", err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &shapeErr):
		return xhttp.NewAppError("shape_mismatch", "prices", err.Error(), http.StatusBadRequest)
	case errors.As(err, &dataErr):
		return xhttp.NewAppError("insufficient_data", "", err.Error(), http.StatusConflict)
	case errors.As(err, &seriesErr):
		return xhttp.NewAppError("malformed_series", "", err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &scaleErr):
		return xhttp.NewAppError("degenerate_scale", "", err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &loadErr):
		return xhttp.InternalError(err.Error())
	default:
		return err
	}
}
