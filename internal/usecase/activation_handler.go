package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"EquiCast/internal/serving"
	"EquiCast/pkg/logger"
)

// ActivationEvent announces that a new run became the active bundle. The
// trainer publishes it after SetActive; serving instances reload on receipt
// so a fleet converges on the new model without manual reload calls.
type ActivationEvent struct {
	RunID  string `json:"run_id"`
	Symbol string `json:"symbol"`
}

// ActivationHandler consumes activation events and hot-swaps the bundle.
type ActivationHandler struct {
	topic   string
	manager *serving.Manager
	logger  *logger.Logger
}

func NewActivationHandler(topic string, manager *serving.Manager, log *logger.Logger) *ActivationHandler {
	return &ActivationHandler{topic: topic, manager: manager, logger: log}
}

func (h *ActivationHandler) Topic() string { return h.topic }

func (h *ActivationHandler) Handle(ctx context.Context, value []byte) error {
	var ev ActivationEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("decode activation event: %w", err)
	}

	if err := h.manager.Reload(ctx); err != nil {
		h.logger.Error("reload on activation failed",
			logger.String("run_id", ev.RunID),
			logger.Error(err),
		)
		return err
	}

	h.logger.Info("reloaded on activation",
		logger.String("run_id", ev.RunID),
		logger.String("symbol", ev.Symbol),
	)
	return nil
}
