// Package blob defines the durable memory blob store boundary.
//
// Each avatar owns exactly one opaque binary payload (its encoded memory
// file). Stores replace the payload wholesale on every write; there is no
// partial-update operation.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound indicates that no payload exists for the avatar.
var ErrNotFound = errors.New("blob not found")

// Store is a per-avatar binary payload store.
type Store interface {
	// Get returns the current payload for the avatar, or ErrNotFound.
	Get(ctx context.Context, avatarID string) ([]byte, error)

	// Put replaces the avatar's payload wholesale.
	Put(ctx context.Context, avatarID string, data []byte) error

	// Close closes the store and releases resources.
	Close() error
}
