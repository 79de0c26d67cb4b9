package breaker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists breaker state as JSON in the workspace state directory,
// so an open circuit survives process restarts.
type FileStore struct {
	path string
}

// NewFileStore creates the state directory and returns a store writing to
// <dir>/breaker.json.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create breaker state dir: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, "breaker.json")}, nil
}

// LoadState reads the persisted snapshot. A missing file yields (nil, nil).
func (s *FileStore) LoadState() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse breaker state: %w", err)
	}
	return &snap, nil
}

// SaveState writes the snapshot atomically via a temp-file rename.
func (s *FileStore) SaveState(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

var _ Store = (*FileStore)(nil)
