package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Store holds JSON-encodable values with a TTL.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get decodes the stored value into dest (a pointer). Missing or expired
	// keys return ErrCacheMiss.
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

// Locker is a best-effort mutual exclusion keyed by name. A lock expires
// after its TTL even if the holder never unlocks.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Service is what the memory, Redis and layered caches implement.
type Service interface {
	Store
	Locker
	Close() error
}

// GenerateKey joins non-empty parts with ':', e.g. ("sentiment", "EUR")
// gives "sentiment:EUR".
func GenerateKey(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}
