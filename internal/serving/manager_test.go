package serving

import (
	"context"
	"errors"
	"sync"
	"testing"

	"EquiCast/internal/domain/models"
	"EquiCast/internal/model"
	"EquiCast/pkg/logger"
)

type fakeStore struct {
	bundle *models.ServingBundle
	err    error
	loads  int
}

func (s *fakeStore) SaveBundle(ctx context.Context, b *models.ServingBundle) error { return nil }
func (s *fakeStore) SetActive(ctx context.Context, runID string) error             { return nil }
func (s *fakeStore) LoadActive(ctx context.Context) (*models.ServingBundle, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	// fresh copy per load, like a real store
	b := *s.bundle
	return &b, nil
}

type fakeMetrics struct {
	states []string
	errs   []string
}

func (m *fakeMetrics) RecordPrediction(symbol, outcome string)        {}
func (m *fakeMetrics) RecordPredictionValue(symbol string, v float64) {}
func (m *fakeMetrics) RecordLatency(op string, seconds float64)       {}
func (m *fakeMetrics) RecordError(kind string)                        { m.errs = append(m.errs, kind) }
func (m *fakeMetrics) RecordServingState(state string)                { m.states = append(m.states, state) }

func testBundle(runID string) *models.ServingBundle {
	params := models.Hyperparams{Lookback: 4, HiddenSize: 6, Layers: 1, Dropout: 0}
	net := model.NewNetwork(params, 11)
	return &models.ServingBundle{
		Snapshot:   net.Snapshot(runID, 1),
		Normalizer: models.NormalizerState{Min: 10, Max: 20},
	}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestManagerLifecycle(t *testing.T) {
	store := &fakeStore{bundle: testBundle("run-1")}
	m := NewManager(store, &fakeMetrics{}, testLogger(t))

	if m.State() != StateUninitialized {
		t.Fatalf("initial state = %s", m.State())
	}
	if _, err := m.Active(); !errors.Is(err, models.ErrServiceNotReady) {
		t.Fatalf("expected ErrServiceNotReady before load, got %v", err)
	}

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.State() != StateReady {
		t.Fatalf("state after load = %s", m.State())
	}

	active, err := m.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Bundle.Snapshot.RunID != "run-1" {
		t.Fatalf("active run = %s", active.Bundle.Snapshot.RunID)
	}
	if active.Net == nil {
		t.Fatalf("active pair missing network")
	}

	// second Load is a protocol violation
	if err := m.Load(context.Background()); err == nil {
		t.Fatalf("expected error for Load from READY")
	}
}

func TestManagerInitialLoadFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("no artifact")}
	m := NewManager(store, &fakeMetrics{}, testLogger(t))

	err := m.Load(context.Background())
	var loadErr *models.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if m.State() != StateFailed {
		t.Fatalf("state = %s, want failed", m.State())
	}
	if _, err := m.Active(); !errors.Is(err, models.ErrServiceNotReady) {
		t.Fatalf("expected ErrServiceNotReady in FAILED, got %v", err)
	}
	// only Reload can recover; a second Load is still a protocol violation
	if err := m.Load(context.Background()); err == nil {
		t.Fatalf("expected error for Load from FAILED")
	}
}

func TestManagerRecoversFromFailedViaReload(t *testing.T) {
	store := &fakeStore{err: errors.New("no artifact")}
	m := NewManager(store, &fakeMetrics{}, testLogger(t))

	if err := m.Load(context.Background()); err == nil {
		t.Fatalf("expected startup load failure")
	}

	// store still down: reload fails and the manager stays FAILED
	if err := m.Reload(context.Background()); err == nil {
		t.Fatalf("expected reload error while store is down")
	}
	if m.State() != StateFailed {
		t.Fatalf("state after failed reload = %s, want failed", m.State())
	}
	if _, err := m.Active(); !errors.Is(err, models.ErrServiceNotReady) {
		t.Fatalf("expected ErrServiceNotReady, got %v", err)
	}

	// first training run lands: an activation-driven reload converges
	store.err = nil
	store.bundle = testBundle("run-1")
	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload after artifact appeared: %v", err)
	}
	if m.State() != StateReady {
		t.Fatalf("state = %s, want ready", m.State())
	}
	active, err := m.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Bundle.Snapshot.RunID != "run-1" {
		t.Fatalf("active run = %s, want run-1", active.Bundle.Snapshot.RunID)
	}
}

func TestManagerReloadSwapsBundle(t *testing.T) {
	store := &fakeStore{bundle: testBundle("run-1")}
	m := NewManager(store, &fakeMetrics{}, testLogger(t))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	store.bundle = testBundle("run-2")
	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if m.State() != StateReady {
		t.Fatalf("state after reload = %s", m.State())
	}
	active, _ := m.Active()
	if active.Bundle.Snapshot.RunID != "run-2" {
		t.Fatalf("active run = %s, want run-2", active.Bundle.Snapshot.RunID)
	}
}

func TestManagerReloadFailureKeepsPrevious(t *testing.T) {
	store := &fakeStore{bundle: testBundle("run-1")}
	metrics := &fakeMetrics{}
	m := NewManager(store, metrics, testLogger(t))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	store.err = errors.New("artifact store down")
	if err := m.Reload(context.Background()); err == nil {
		t.Fatalf("expected reload error")
	}
	if m.State() != StateReady {
		t.Fatalf("state after failed reload = %s, want ready", m.State())
	}
	active, err := m.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Bundle.Snapshot.RunID != "run-1" {
		t.Fatalf("previous bundle lost: %s", active.Bundle.Snapshot.RunID)
	}
	if len(metrics.errs) == 0 {
		t.Fatalf("reload failure not counted")
	}
}

func TestManagerRejectsInvalidSnapshot(t *testing.T) {
	bundle := testBundle("run-1")
	bundle.Snapshot.OutW = bundle.Snapshot.OutW[:2]
	store := &fakeStore{bundle: bundle}
	m := NewManager(store, &fakeMetrics{}, testLogger(t))

	err := m.Load(context.Background())
	var loadErr *models.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	var archErr *models.ArchitectureMismatchError
	if !errors.As(err, &archErr) {
		t.Fatalf("expected wrapped ArchitectureMismatchError, got %v", err)
	}
}

func TestManagerConcurrentReadsDuringReload(t *testing.T) {
	store := &fakeStore{bundle: testBundle("run-1")}
	m := NewManager(store, &fakeMetrics{}, testLogger(t))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				active, err := m.Active()
				if err != nil {
					// a reload in flight must never interrupt serving
					t.Errorf("Active during reload: %v", err)
					return
				}
				run := active.Bundle.Snapshot.RunID
				if run != "run-1" && run != "run-2" {
					t.Errorf("torn pair: run=%q", run)
					return
				}
				if active.Net == nil {
					t.Errorf("pair %q missing network", run)
					return
				}
			}
		}()
	}

	for i := 0; i < 25; i++ {
		if i%2 == 0 {
			store.bundle = testBundle("run-2")
		} else {
			store.bundle = testBundle("run-1")
		}
		if err := m.Reload(context.Background()); err != nil {
			t.Fatalf("Reload %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestManagerShutdown(t *testing.T) {
	store := &fakeStore{bundle: testBundle("run-1")}
	m := NewManager(store, &fakeMetrics{}, testLogger(t))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	m.Shutdown()
	if m.State() != StateShutdown {
		t.Fatalf("state = %s, want shutdown", m.State())
	}
	if _, err := m.Active(); !errors.Is(err, models.ErrServiceNotReady) {
		t.Fatalf("expected ErrServiceNotReady after shutdown, got %v", err)
	}
}
