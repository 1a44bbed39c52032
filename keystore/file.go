package keystore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileBackend keeps the key in a local file.
type FileBackend struct {
	path string
	log  *slog.Logger
}

// NewFileBackend creates the parent directory of path if needed.
func NewFileBackend(path string, log *slog.Logger) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrInvalidLocationURI)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	return &FileBackend{path: path, log: log}, nil
}

func (b *FileBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrKeyNotFound
	}

	b.log.Debug("Loaded key from file", slog.String("path", b.path))
	return data, nil
}

func (b *FileBackend) Store(ctx context.Context, key []byte) error {
	if err := os.WriteFile(b.path, key, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	b.log.Debug("Stored key in file", slog.String("path", b.path))
	return nil
}

func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.path))
}

func (b *FileBackend) LocationURI() string {
	return "file://" + b.path
}
