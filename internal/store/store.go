// Package store defines the Store interface for the per-origin key-value
// storage that holds experiment assignments.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Store is a durable string key-value store scoped to one origin.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value at key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value at key, replacing any existing value. The empty
	// string is a valid key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all stored keys in sorted order.
	Keys(ctx context.Context) ([]string, error)

	Close() error
}

// Open creates a Store for backend rooted at dir.
// The memory backend ignores dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(dir)
	case BackendSQLite, "":
		return NewSQLiteStore(dir)
	default:
		return nil, fmt.Errorf("%w: %q (valid: memory, file, sqlite)", ErrUnknownBackend, backend)
	}
}

// Location returns the on-disk file a backend would use under dir, or "" for memory.
func Location(backend, dir string) string {
	switch backend {
	case BackendFile:
		return filepath.Join(dir, fileStoreName)
	case BackendSQLite, "":
		return filepath.Join(dir, sqliteStoreName)
	default:
		return ""
	}
}
