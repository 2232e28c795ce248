package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"EquiCast/internal/domain/models"
	applogger "EquiCast/pkg/logger"
)

// FSArtifactStore persists bundles as one JSON document per run under
// <dir>/runs/, plus an ACTIVE pointer file naming the live run. Every write
// goes through a temp file and rename, so readers never observe a partial
// document and activation is all-or-nothing.
type FSArtifactStore struct {
	dir string
	l   *applogger.Logger
}

const activeFile = "ACTIVE"

func NewFSArtifactStore(dir string, l *applogger.Logger) (*FSArtifactStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "runs"), 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &FSArtifactStore{dir: dir, l: l}, nil
}

func (s *FSArtifactStore) SaveBundle(ctx context.Context, bundle *models.ServingBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runID := bundle.Snapshot.RunID
	if runID == "" {
		return fmt.Errorf("save bundle: empty run id")
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bundle %s: %w", runID, err)
	}
	path := s.runPath(runID)
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("write bundle %s: %w", runID, err)
	}
	if s.l != nil {
		s.l.Info("bundle persisted",
			applogger.String("run_id", runID),
			applogger.String("path", path),
			applogger.Int("bytes", len(data)),
		)
	}
	return nil
}

func (s *FSArtifactStore) SetActive(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(s.runPath(runID)); err != nil {
		return fmt.Errorf("activate %s: %w", runID, err)
	}
	if err := atomicWrite(filepath.Join(s.dir, activeFile), []byte(runID+"\n")); err != nil {
		return fmt.Errorf("activate %s: %w", runID, err)
	}
	if s.l != nil {
		s.l.Info("run activated", applogger.String("run_id", runID))
	}
	return nil
}

func (s *FSArtifactStore) LoadActive(ctx context.Context) (*models.ServingBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, activeFile))
	if err != nil {
		return nil, fmt.Errorf("read active pointer: %w", err)
	}
	runID := strings.TrimSpace(string(raw))
	if runID == "" {
		return nil, fmt.Errorf("active pointer is empty")
	}

	data, err := os.ReadFile(s.runPath(runID))
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", runID, err)
	}
	var bundle models.ServingBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decode bundle %s: %w", runID, err)
	}
	if bundle.Snapshot.RunID != runID {
		return nil, fmt.Errorf("bundle %s: document names run %s", runID, bundle.Snapshot.RunID)
	}
	return &bundle, nil
}

func (s *FSArtifactStore) runPath(runID string) string {
	return filepath.Join(s.dir, "runs", runID+".json")
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
