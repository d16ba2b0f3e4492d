package session

import (
	"context"
	"errors"
	"time"
)

// Store persists opaque session state between processes.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists data under id for ttl. If id already exists it is
	// overwritten. A non-positive ttl deletes the entry.
	Save(ctx context.Context, id string, data []byte, ttl time.Duration) error

	// Load retrieves data by id.
	// Returns (nil, nil) if the entry doesn't exist or has expired.
	// Returns (nil, err) on backend errors.
	Load(ctx context.Context, id string) ([]byte, error)

	// Delete removes an entry.
	// Should not return an error if the entry doesn't exist.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("session: store is closed")
