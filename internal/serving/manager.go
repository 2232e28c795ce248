package serving

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"EquiCast/internal/domain/models"
	"EquiCast/internal/domain/repository"
	"EquiCast/internal/model"
	"EquiCast/pkg/logger"
)

// State is the lifecycle phase of the serving manager.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateReloading
	StateFailed
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateReloading:
		return "reloading"
	case StateFailed:
		return "failed"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Active is the published unit of serving state: the persisted bundle plus
// the network reconstructed from its snapshot. Both always belong to the
// same run; readers see either the whole pair or the previous whole pair.
type Active struct {
	Bundle *models.ServingBundle
	Net    *model.Network
}

// Manager owns the serving lifecycle. Transitions are serialized by mu;
// reads of the active pair are lock-free through an atomic pointer, so a
// reload never blocks in-flight predictions.
type Manager struct {
	mu      sync.Mutex
	state   atomic.Int32
	active  atomic.Pointer[Active]
	store   repository.ArtifactStore
	metrics repository.Metrics
	log     *logger.Logger
}

func NewManager(store repository.ArtifactStore, metrics repository.Metrics, log *logger.Logger) *Manager {
	m := &Manager{store: store, metrics: metrics, log: log}
	m.setState(StateUninitialized)
	return m
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Active returns the live (bundle, network) pair, or ErrServiceNotReady when
// no bundle has been published yet or the manager has shut down.
func (m *Manager) Active() (*Active, error) {
	if m.State() == StateShutdown {
		return nil, models.ErrServiceNotReady
	}
	a := m.active.Load()
	if a == nil {
		return nil, models.ErrServiceNotReady
	}
	return a, nil
}

// Load performs the startup load. It may only be called from UNINITIALIZED.
// A failed load leaves the manager in FAILED; recovery goes through Reload
// once a bundle becomes available.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.State(); s != StateUninitialized {
		return fmt.Errorf("load from state %s: only allowed from %s", s, StateUninitialized)
	}
	m.setState(StateLoading)

	active, err := m.fetch(ctx)
	if err != nil {
		m.setState(StateFailed)
		m.log.Error("initial bundle load failed", logger.Error(err))
		return err
	}

	m.active.Store(active)
	m.setState(StateReady)
	m.log.Info("bundle loaded",
		logger.String("run_id", active.Bundle.Snapshot.RunID),
		logger.Int("version", active.Bundle.Snapshot.Version),
	)
	return nil
}

// Reload swaps in the currently active persisted bundle. It may be called
// from READY, or from FAILED so a replica that came up before its first
// training run can converge once an activation event or an explicit reload
// arrives. On failure the manager returns to the state it started from:
// from READY the previous pair stays live, from FAILED there is still
// nothing to serve.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.State()
	if from != StateReady && from != StateFailed {
		return fmt.Errorf("reload from state %s: only allowed from %s or %s", from, StateReady, StateFailed)
	}
	m.setState(StateReloading)

	active, err := m.fetch(ctx)
	if err != nil {
		m.setState(from)
		m.metrics.RecordError("reload")
		m.log.Error("reload failed", logger.Error(err), logger.String("state", from.String()))
		return err
	}

	prev := m.active.Swap(active)
	m.setState(StateReady)

	prevRun := ""
	if prev != nil {
		prevRun = prev.Bundle.Snapshot.RunID
	}
	m.log.Info("bundle reloaded",
		logger.String("run_id", active.Bundle.Snapshot.RunID),
		logger.String("previous_run_id", prevRun),
	)
	return nil
}

// Shutdown moves to the terminal SHUTDOWN state and drops the active pair.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateShutdown {
		return
	}
	m.setState(StateShutdown)
	m.active.Store(nil)
	m.log.Info("serving manager shut down")
}

// fetch loads the active persisted bundle and reconstructs its network,
// validating the stored shapes against the snapshot hyperparameters.
func (m *Manager) fetch(ctx context.Context) (*Active, error) {
	bundle, err := m.store.LoadActive(ctx)
	if err != nil {
		return nil, &models.LoadError{Err: err}
	}
	net, err := model.FromSnapshot(&bundle.Snapshot)
	if err != nil {
		return nil, &models.LoadError{RunID: bundle.Snapshot.RunID, Err: err}
	}
	bundle.LoadedAt = time.Now().UTC()
	return &Active{Bundle: bundle, Net: net}, nil
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	if m.metrics != nil {
		m.metrics.RecordServingState(s.String())
	}
}
