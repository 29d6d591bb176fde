// Package local provides a filesystem payload archive.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Store writes payloads under a base directory, one file per payload.
type Store struct {
	dir string
}

// New creates the base directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put writes one payload, creating intermediate directories from the
// name's path segments.
func (s *Store) Put(_ context.Context, name string, data []byte) error {
	path := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create payload dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write payload %s: %w", name, err)
	}
	return nil
}
