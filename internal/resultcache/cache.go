// Package resultcache implements the resolver's evaluation cache: a
// Lookup/Store/DeletePrefix/Size/Close shape holding a typed resolution
// keyed by flag name and canonicalized evaluation context.
package resultcache

import (
	"context"
	"time"
)

// Entry is a cached evaluation outcome keyed by (flagName, canonicalized
// context).
type Entry struct {
	// Value is the already-coerced value the resolver produced (bool,
	// string, float64, or a decoded object), cached post-coercion so a hit
	// never re-runs step 7 of the pipeline.
	Value any

	Reason    string
	Variant   string
	ErrorCode string

	StoredAt  time.Time
	ExpiresAt time.Time
}

// Cache is the resolver's TTL-bounded evaluation cache contract. An
// implementation must be safe for concurrent readers and writers.
type Cache interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry) error
	// DeletePrefix purges every entry whose key starts with prefix; an empty
	// prefix is a no-op rather than a purge of everything.
	DeletePrefix(ctx context.Context, prefix string) error
	// InvalidateAll purges every entry unconditionally, used on artifact
	// reload and override replacement.
	InvalidateAll(ctx context.Context) error
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}
