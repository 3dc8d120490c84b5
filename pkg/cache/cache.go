// Package cache stores rendered diagrams keyed by a hash of their input.
//
// Rendering a workflow through Graphviz (and rsvg for PDF and PNG) is the
// slowest thing flowboard does, and the output depends only on the DOT text
// and a few options. [Key] turns those into a content address, so entries
// never go stale and need no invalidation:
//
//	key := cache.Key("svg", dot)
//	svg, hit, err := cache.GetOrSet(ctx, c, key, 0, func() ([]byte, error) {
//	    return nodelink.RenderSVG(ctx, dot)
//	})
//
// Backends: [MemoryCache] (bounded, for the server), [FileCache] (for the
// CLI, under the user cache directory) and [NullCache] (disabled).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Cache is a byte-oriented key/value cache.
type Cache interface {
	// Get returns the value for key. hit is false on a miss or an expired
	// entry; err is reserved for backend failures.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)

	// Set stores data under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Key generates a cache key by hashing the components.
// The key format is: namespace:sha256(parts...)
func Key(namespace string, parts ...any) string {
	data, _ := json.Marshal(parts)
	return namespace + ":" + Hash(data)
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// GetOrSet returns the cached value for key, or calls produce and caches its
// result. Backend errors are not fatal: a failed read falls through to
// produce and a failed write still returns the produced value.
func GetOrSet(ctx context.Context, c Cache, key string, ttl time.Duration, produce func() ([]byte, error)) (data []byte, hit bool, err error) {
	if data, hit, err := c.Get(ctx, key); err == nil && hit {
		return data, true, nil
	}
	data, err = produce()
	if err != nil {
		return nil, false, err
	}
	_ = c.Set(ctx, key, data, ttl)
	return data, false, nil
}
