// Package checkpoint persists crawl progress as a versioned JSON record so
// an interrupted run can resume without reprocessing visited units. Only
// identifiers and counters are persisted; working structures are rebuilt
// from configuration plus these keys on restart.
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arvinsingh/fictech-harvester/internal/model"
)

// SchemaVersion identifies the checkpoint layout. Records with a different
// version are discarded rather than migrated.
const SchemaVersion = 1

// State is a self-contained restart point for a harvest run.
type State struct {
	SchemaVersion     int                  `json:"schema_version"`
	RunID             string               `json:"run_id"`
	VisitedCategories []string             `json:"visited_categories"`
	VisitedPages      []string             `json:"visited_pages"`
	Frontier          []model.FrontierItem `json:"frontier"`
	EntriesEmitted    int                  `json:"entries_emitted_count"`
	RunStartedAt      time.Time            `json:"run_started_at"`
}

// Manager saves and restores checkpoint state at a fixed path.
type Manager struct {
	path string
}

// NewManager creates a Manager writing to the given file path. The parent
// directory is created on the first save.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the checkpoint file location.
func (m *Manager) Path() string {
	return m.path
}

// Exists reports whether a checkpoint file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Save writes the state atomically: marshal to a temporary file in the same
// directory, fsync, then rename over the target. A crash mid-write never
// leaves a partially-written checkpoint visible.
func (m *Manager) Save(state *State) error {
	state.SchemaVersion = SchemaVersion

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: marshal state")
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return eris.Wrapf(err, "checkpoint: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(m.path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "checkpoint: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "checkpoint: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "checkpoint: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "checkpoint: close temp file")
	}

	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "checkpoint: rename into place")
	}

	zap.L().Debug("checkpoint saved",
		zap.String("path", m.path),
		zap.Int("visited_pages", len(state.VisitedPages)),
		zap.Int("visited_categories", len(state.VisitedCategories)),
		zap.Int("frontier", len(state.Frontier)),
		zap.Int("entries_emitted", state.EntriesEmitted),
	)
	return nil
}

// Clear removes the checkpoint file. Called when a run completes with an
// empty frontier, so the next invocation starts fresh from its seeds.
func (m *Manager) Clear() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "checkpoint: remove %s", m.path)
	}
	return nil
}

// Load reads the checkpoint if one exists. A missing, unparsable, or
// wrong-schema checkpoint returns (nil, nil): the caller starts a fresh
// crawl from the configured seeds. Corruption is never fatal.
func (m *Manager) Load() (*State, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "checkpoint: read %s", m.path)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		zap.L().Warn("checkpoint unreadable, starting fresh",
			zap.String("path", m.path),
			zap.Error(err),
		)
		return nil, nil
	}

	if state.SchemaVersion != SchemaVersion {
		zap.L().Warn("checkpoint schema mismatch, starting fresh",
			zap.String("path", m.path),
			zap.Int("found", state.SchemaVersion),
			zap.Int("want", SchemaVersion),
		)
		return nil, nil
	}

	return &state, nil
}
