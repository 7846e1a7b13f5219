package tracker

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for receipt artifact storage.
type Storage interface {
	// Save stores an artifact and returns the path it was stored under.
	Save(filename string, data []byte) (string, error)

	// Get retrieves an artifact by path.
	Get(path string) ([]byte, error)

	// Delete removes an artifact.
	Delete(path string) error
}

// LocalStorage implements the Storage interface on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a LocalStorage rooted at basePath, creating
// the directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{basePath: basePath}, nil
}

// Save writes an artifact under the storage root.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	return filename, nil
}

// Get reads an artifact back.
func (l *LocalStorage) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return data, nil
}

// Delete removes an artifact.
func (l *LocalStorage) Delete(path string) error {
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting artifact: %w", err)
	}
	return nil
}
