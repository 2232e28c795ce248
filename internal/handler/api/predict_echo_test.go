package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"EquiCast/internal/domain/models"
	"EquiCast/internal/model"
	"EquiCast/internal/serving"
	"EquiCast/internal/usecase"
	"EquiCast/pkg/config"
	xhttp "EquiCast/pkg/http"
	"EquiCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

type memArtifacts struct {
	bundle *models.ServingBundle
}

func (s *memArtifacts) SaveBundle(ctx context.Context, b *models.ServingBundle) error { return nil }
func (s *memArtifacts) SetActive(ctx context.Context, runID string) error             { return nil }
func (s *memArtifacts) LoadActive(ctx context.Context) (*models.ServingBundle, error) {
	if s.bundle == nil {
		return nil, errors.New("no active bundle")
	}
	copied := *s.bundle
	return &copied, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordPrediction(symbol, outcome string)        {}
func (nopMetrics) RecordPredictionValue(symbol string, v float64) {}
func (nopMetrics) RecordLatency(op string, seconds float64)       {}
func (nopMetrics) RecordError(kind string)                        {}
func (nopMetrics) RecordServingState(state string)                {}

type memQueue struct {
	published []string
	err       error
}

func (q *memQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, msgType)
	return nil
}

func testHandler(t *testing.T, bundle *models.ServingBundle) (*PredictEchoHandler, *memQueue) {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	artifacts := &memArtifacts{bundle: bundle}
	manager := serving.NewManager(artifacts, nopMetrics{}, l)
	if bundle != nil {
		if err := manager.Load(context.Background()); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}

	predictor := usecase.NewPredictor(manager, nil, nopMetrics{}, l)
	jobs := &memQueue{}
	cfg := &config.Config{}
	return NewPredictEchoHandler(l, predictor, manager, jobs, nil, cfg), jobs
}

func testBundle(lookback int) *models.ServingBundle {
	params := models.Hyperparams{Lookback: lookback, HiddenSize: 4, Layers: 1, Dropout: 0}
	net := model.NewNetwork(params, 9)
	return &models.ServingBundle{
		Snapshot:   net.Snapshot("run-1", 1),
		Normalizer: models.NormalizerState{Min: 10, Max: 20},
	}
}

func doJSON(h echo.HandlerFunc, method, path, body string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) xhttp.APIResponse {
	t.Helper()
	var resp xhttp.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestPredictEndpoint(t *testing.T) {
	h, _ := testHandler(t, testBundle(3))

	rec, err := doJSON(h.Predict, http.MethodPost, "/api/predict",
		`{"symbol":"TEST","prices":[12,13,14]}`)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	resp := envelope(t, rec)
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Status, rec.Body.String())
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data payload: %v", resp.Data)
	}
	if data["run_id"] != "run-1" {
		t.Errorf("run_id = %v", data["run_id"])
	}
	if data["last_price"].(float64) != 14 {
		t.Errorf("last_price = %v", data["last_price"])
	}
	if _, ok := data["predicted_next_close"]; !ok {
		t.Errorf("missing predicted_next_close: %v", data)
	}
}

func TestPredictEndpointValidation(t *testing.T) {
	h, _ := testHandler(t, testBundle(3))

	cases := []struct {
		name string
		body string
	}{
		{"missing symbol", `{"prices":[1,2,3]}`},
		{"empty prices", `{"symbol":"TEST","prices":[]}`},
		{"non-positive price", `{"symbol":"TEST","prices":[10,-1,12]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := doJSON(h.Predict, http.MethodPost, "/api/predict", tc.body)
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if resp := envelope(t, rec); resp.Status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.Status)
			}
		})
	}
}

func TestPredictEndpointShapeMismatch(t *testing.T) {
	h, _ := testHandler(t, testBundle(3))

	rec, err := doJSON(h.Predict, http.MethodPost, "/api/predict",
		`{"symbol":"TEST","prices":[12,13]}`)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := envelope(t, rec); resp.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
}

func TestPredictEndpointNotReady(t *testing.T) {
	h, _ := testHandler(t, nil)

	rec, err := doJSON(h.Predict, http.MethodPost, "/api/predict",
		`{"symbol":"TEST","prices":[12,13,14]}`)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := envelope(t, rec); resp.Status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.Status)
	}
}

func TestRetrainEndpointEnqueues(t *testing.T) {
	h, jobs := testHandler(t, testBundle(3))

	rec, err := doJSON(h.Retrain, http.MethodPost, "/api/retrain", `{"symbol":"TEST"}`)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := envelope(t, rec); resp.Status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.Status)
	}
	if len(jobs.published) != 1 || jobs.published[0] != usecase.MsgTypeRetrain {
		t.Fatalf("published = %v", jobs.published)
	}
}

func TestReloadEndpoint(t *testing.T) {
	h, _ := testHandler(t, testBundle(3))

	rec, err := doJSON(h.Reload, http.MethodPost, "/api/reload", "")
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	resp := envelope(t, rec)
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Status, rec.Body.String())
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data payload: %v", resp.Data)
	}
	if data["run_id"] != "run-1" || data["lookback"].(float64) != 3 {
		t.Errorf("unexpected reload payload: %v", data)
	}
}
