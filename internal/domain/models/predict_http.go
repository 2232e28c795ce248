package models

// Requests and responses for the inference HTTP endpoints. Defined in domain
// for consistency and reuse.

type PredictRequest struct {
	Symbol string    `json:"symbol" validate:"required"`
	Prices []float64 `json:"prices" validate:"required,min=1,dive,gt=0"`
}

type PredictNextRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type PredictResponse struct {
	Symbol        string  `json:"symbol"`
	RunID         string  `json:"run_id"`
	LastPrice     float64 `json:"last_price"`
	Predicted     float64 `json:"predicted_next_close"`
	ChangePercent float64 `json:"change_percent"`
	LatencyMS     float64 `json:"latency_ms"`
}

type RetrainRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

type ReloadResponse struct {
	RunID    string `json:"run_id"`
	Version  int    `json:"version"`
	Lookback int    `json:"lookback"`
}
