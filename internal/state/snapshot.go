// Package state persists a best-effort snapshot of queued tasks so a
// restarted scheduler can re-enqueue work that never dispatched. This is
// not a transactional log: in-flight tasks are not recoverable and no
// exactly-once guarantee exists across crashes.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

// snapshotVersion guards against loading snapshots from incompatible builds.
const snapshotVersion = 1

// snapshot is the on-disk format.
type snapshot struct {
	Version int            `json:"version"`
	Tasks   []*models.Task `json:"tasks"`
}

// Save writes the queued tasks to path atomically (temp file + rename).
func Save(path string, tasks []*models.Task) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot{Version: snapshotVersion, Tasks: tasks}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot from path. A missing file is not an error; it
// returns no tasks.
func Load(path string) ([]*models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return snap.Tasks, nil
}
