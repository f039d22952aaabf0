// internal/checkpoint/index.go
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	indexFileName = "index.json"
	indexVersion  = "1.0"
)

// indexFile is the persisted manifest of every checkpoint in the store. It is
// small (checkpoint count is bounded by retention) so it is rewritten
// wholesale on every mutation.
type indexFile struct {
	Version     string        `json:"version"`
	Workspace   string        `json:"workspace_root"`
	LastUpdated time.Time     `json:"last_updated"`
	Checkpoints []*Checkpoint `json:"checkpoints"`
}

// loadIndex reads the manifest from disk. A missing index is an empty store,
// not an error.
func loadIndex(path string) ([]*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "read index", Path: path, Err: err}
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse checkpoint index: %w", err)
	}
	return idx.Checkpoints, nil
}

// saveIndexLocked rewrites the manifest atomically: the new content goes to a
// temp file in the same directory and is renamed over the old index, so a
// concurrent reader (or the retention loop) never observes a half-written
// file. Callers must hold s.mu.
func (s *Store) saveIndexLocked() error {
	idx := indexFile{
		Version:     indexVersion,
		Workspace:   s.root,
		LastUpdated: time.Now().UTC(),
		Checkpoints: s.checkpoints,
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint index: %w", err)
	}

	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &StorageError{Op: "write index", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, s.indexPath); err != nil {
		os.Remove(tmp)
		return &StorageError{Op: "rename index", Path: s.indexPath, Err: err}
	}

	s.indexSavedAt = time.Now()
	return nil
}

// checkpointDir returns the blob directory for a checkpoint id.
func (s *Store) checkpointDir(id string) string {
	return filepath.Join(s.dir, id)
}
