package api

import (
	"context"
	"net/http"
	"time"

	domrepo "EquiCast/internal/domain/repository"
	"EquiCast/internal/serving"
	xhttp "EquiCast/pkg/http"

	"github.com/labstack/echo/v4"
)

// HealthEchoHandler exposes liveness and readiness probes. Readiness carries
// the identity of the live run so operators can confirm which model answered
// after a reload.
type HealthEchoHandler struct {
	manager *serving.Manager
	store   domrepo.SeriesStore
	stream  interface{ IsConnected() bool }
}

func NewHealthEchoHandler(manager *serving.Manager, store domrepo.SeriesStore, stream interface{ IsConnected() bool }) *HealthEchoHandler {
	return &HealthEchoHandler{manager: manager, store: store, stream: stream}
}

func (h *HealthEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Liveness)
	e.GET("/readyz", h.Readiness)
}

// Liveness reports that the process is up.
func (h *HealthEchoHandler) Liveness(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

type readinessReport struct {
	State           string    `json:"state"`
	RunID           string    `json:"run_id,omitempty"`
	Version         int       `json:"version,omitempty"`
	Lookback        int       `json:"lookback,omitempty"`
	LoadedAt        time.Time `json:"loaded_at,omitempty"`
	Storage         string    `json:"storage"`
	StreamConnected bool      `json:"stream_connected"`
}

// Readiness reports serving state, the live run identity, and dependency
// health. 503 until a bundle is live.
func (h *HealthEchoHandler) Readiness(c echo.Context) error {
	report := readinessReport{State: h.manager.State().String()}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if h.store != nil {
		if err := h.store.Health(ctx); err != nil {
			report.Storage = "unreachable"
		} else {
			report.Storage = "ok"
		}
	}
	if h.stream != nil {
		report.StreamConnected = h.stream.IsConnected()
	}

	active, err := h.manager.Active()
	if err != nil {
		// probes need the real status code, not an enveloped one
		return c.JSON(http.StatusServiceUnavailable, report)
	}
	report.RunID = active.Bundle.Snapshot.RunID
	report.Version = active.Bundle.Snapshot.Version
	report.Lookback = active.Bundle.Lookback()
	report.LoadedAt = active.Bundle.LoadedAt
	return xhttp.SuccessResponse(c, report)
}

// Routes bundles the API handlers into one route registrar.
type Routes struct {
	Predict *PredictEchoHandler
	Health  *HealthEchoHandler
}

func NewRoutes(predict *PredictEchoHandler, health *HealthEchoHandler) *Routes {
	return &Routes{Predict: predict, Health: health}
}

func (r *Routes) RegisterRoutes(e *echo.Echo) {
	r.Predict.RegisterRoutes(e)
	r.Health.RegisterRoutes(e)
}
