package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage holds receipt images while a scan is running. Nothing is kept
// once the scan finishes.
type Storage interface {
	// Save stores data and returns the name to read it back with.
	Save(filename string, data []byte) (string, error)
	Get(name string) ([]byte, error)
	Delete(name string) error
}

// LocalStorage keeps scan images in a private local directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance. An empty basePath
// uses a directory under os.TempDir.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "receipt-ledger")
	}
	// Images are private; keep the directory owner-only.
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{basePath: basePath}, nil
}

// Save writes data under the base name of filename and returns that name.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	name := filepath.Base(filename)
	if err := os.WriteFile(l.resolve(name), data, 0600); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get reads a saved file
func (l *LocalStorage) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(l.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a saved file. Removing a file twice is an error.
func (l *LocalStorage) Delete(name string) error {
	if err := os.Remove(l.resolve(name)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// resolve keeps every name inside basePath.
func (l *LocalStorage) resolve(name string) string {
	return filepath.Join(l.basePath, filepath.Base(name))
}
