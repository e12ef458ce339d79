package rollback

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"grimm.is/selab/internal/brand"
)

// Store persists the journal.
type Store interface {
	Load() ([]ChangeRecord, error)
	Save(history []ChangeRecord) error
	Path() string
}

// FileStore keeps the history as a JSON array, newest first.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path. An empty path selects
// DefaultHistoryPath.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultHistoryPath()
	}
	return &FileStore{path: path}
}

// DefaultHistoryPath is the history file in the per-user config directory,
// or ~/.selab_rollback_history.json when there is none.
func DefaultHistoryPath() string {
	return brand.UserFile(brand.HistoryFileName)
}

func (s *FileStore) Path() string { return s.path }

// Load returns an empty history when the file does not exist.
func (s *FileStore) Load() ([]ChangeRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ChangeRecord{}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}

	var history []ChangeRecord
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, &PersistenceError{Op: "parse", Path: s.path, Err: err}
	}
	if history == nil {
		history = []ChangeRecord{}
	}
	return history, nil
}

// Save overwrites the file with history, creating parent directories.
func (s *FileStore) Save(history []ChangeRecord) error {
	if history == nil {
		history = []ChangeRecord{}
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}

	// Write to a temp file and rename over the old history.
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}
