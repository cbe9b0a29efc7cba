// Package localblob stores memory files on the local filesystem.
//
// Each avatar's file lives at <root>/<avatar_id>/memory.bin. Writes go
// through a temp file and rename so readers never observe a partial file.
package localblob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/companionlabs/avatarmem-go/pkg/blob"
)

// Store implements blob.Store on a local directory.
type Store struct {
	root string
}

// New creates a local blob store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("localblob: root directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("localblob: %w", err)
	}
	return &Store{root: dir}, nil
}

// Get reads the memory file for an avatar.
//
// Returns blob.ErrNotFound if no file has been stored yet.
func (s *Store) Get(ctx context.Context, avatarID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(avatarID))
	if os.IsNotExist(err) {
		return nil, blob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("localblob: Get: %w", err)
	}
	return data, nil
}

// Put atomically replaces the memory file for an avatar.
func (s *Store) Put(ctx context.Context, avatarID string, data []byte) error {
	path := s.path(avatarID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("localblob: Put: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("localblob: Put: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("localblob: Put: %w", err)
	}
	return nil
}

// Close is a no-op for the local store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(avatarID string) string {
	return filepath.Join(s.root, avatarID, "memory.bin")
}
