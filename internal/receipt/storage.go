package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage holds receipt image blobs behind opaque references. The owning
// Receipt carries the reference; when the receipt is deleted the image
// must be released too.
type Storage interface {
	// Save stores a blob and returns its reference
	Save(name string, data []byte) (string, error)

	// Get retrieves a blob by reference
	Get(ref string) ([]byte, error)

	// Delete removes a blob
	Delete(ref string) error
}

// LocalStorage implements the Storage interface on the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save stores a blob under the given name
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get retrieves a blob by reference
func (l *LocalStorage) Get(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, ref))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a blob
func (l *LocalStorage) Delete(ref string) error {
	if err := os.Remove(filepath.Join(l.basePath, ref)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
