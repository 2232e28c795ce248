package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"EquiCast/internal/domain/models"
	"EquiCast/internal/model"
)

func testBundle(runID string) *models.ServingBundle {
	params := models.Hyperparams{Lookback: 3, HiddenSize: 4, Layers: 1, Dropout: 0}
	net := model.NewNetwork(params, 5)
	return &models.ServingBundle{
		Snapshot:   net.Snapshot(runID, 1),
		Normalizer: models.NormalizerState{Min: 1, Max: 9},
	}
}

func newTestStore(t *testing.T) *FSArtifactStore {
	t.Helper()
	store, err := NewFSArtifactStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFSArtifactStore: %v", err)
	}
	return store
}

func TestArtifactStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bundle := testBundle("run-1")
	if err := store.SaveBundle(ctx, bundle); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}
	if err := store.SetActive(ctx, "run-1"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	loaded, err := store.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if loaded.Snapshot.RunID != "run-1" {
		t.Fatalf("loaded run = %s", loaded.Snapshot.RunID)
	}
	if loaded.Normalizer != bundle.Normalizer {
		t.Fatalf("normalizer changed across persistence: %+v", loaded.Normalizer)
	}
	if len(loaded.Snapshot.Layers) != len(bundle.Snapshot.Layers) {
		t.Fatalf("layer count changed: %d", len(loaded.Snapshot.Layers))
	}
	if loaded.Snapshot.Layers[0].WX[0] != bundle.Snapshot.Layers[0].WX[0] {
		t.Fatalf("weights changed across persistence")
	}
}

func TestArtifactStoreActivationSwitches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2"} {
		if err := store.SaveBundle(ctx, testBundle(id)); err != nil {
			t.Fatalf("SaveBundle %s: %v", id, err)
		}
	}

	if err := store.SetActive(ctx, "run-1"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if err := store.SetActive(ctx, "run-2"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	loaded, err := store.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if loaded.Snapshot.RunID != "run-2" {
		t.Fatalf("active run = %s, want run-2", loaded.Snapshot.RunID)
	}
}

func TestArtifactStoreRejectsUnknownActivation(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetActive(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error activating unknown run")
	}
}

func TestArtifactStoreNoActivePointer(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.LoadActive(context.Background()); err == nil {
		t.Fatalf("expected error with no active pointer")
	}
}

func TestArtifactStoreDetectsRunMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSArtifactStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFSArtifactStore: %v", err)
	}
	ctx := context.Background()

	if err := store.SaveBundle(ctx, testBundle("run-1")); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}
	if err := store.SetActive(ctx, "run-1"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	// corrupt the pointer to name a document that holds a different run
	other := testBundle("run-other")
	if err := store.SaveBundle(ctx, other); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}
	src := filepath.Join(dir, "runs", "run-other.json")
	dst := filepath.Join(dir, "runs", "run-1.json")
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := store.LoadActive(ctx); err == nil {
		t.Fatalf("expected error for run id mismatch")
	}
}
