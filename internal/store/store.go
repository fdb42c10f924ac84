package store

import (
	"context"
	"time"
)

// Store is the key-value contract shared by the durable Redis backend and the
// in-process fallback. Which one backs it is a startup decision; callers never
// probe for the concrete type.
type Store interface {
	// Get retrieves a value. A miss is (nil, nil), not an error.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value with an expiry. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
	// Exists reports whether the key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
	// Touch refreshes the key's expiry without rewriting the value. It
	// returns false when the key is missing.
	Touch(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Close releases backend resources.
	Close() error
}
