package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// ImageStorage owns the captured receipt image bytes. Receipt records hold
// only the URI returned by Save; deleting a record does not have to delete
// the image.
type ImageStorage interface {
	// Save stores an image and returns its URI.
	Save(filename string, data []byte) (string, error)

	// Get retrieves an image by URI.
	Get(uri string) ([]byte, error)

	// Delete removes an image.
	Delete(uri string) error
}

// LocalImageStorage implements ImageStorage on the local filesystem.
type LocalImageStorage struct {
	basePath string
}

// NewLocalImageStorage creates the storage directory if needed.
func NewLocalImageStorage(basePath string) (*LocalImageStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalImageStorage{basePath: basePath}, nil
}

// Save writes an image under the storage directory.
func (l *LocalImageStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return filename, nil
}

// Get reads an image back by URI.
func (l *LocalImageStorage) Get(uri string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, uri))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}

// Delete removes an image.
func (l *LocalImageStorage) Delete(uri string) error {
	if err := os.Remove(filepath.Join(l.basePath, uri)); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}
