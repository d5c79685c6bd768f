// Package memfs contains core domain types and interfaces for the memfs
// in-memory filesystem
package memfs

import (
	"context"
	"time"
)

// FileAdapter supplies the content of a single regular file. The tree itself
// treats file content as opaque; adapters are 1:1 with the file node they
// were created for.
type FileAdapter interface {
	// Reads up to size bytes into buf starting at offset.
	// Returns number of bytes read and any error
	Read(ctx context.Context, offset int64, size int64, buf []byte) (int, error)

	// GetMeta returns metadata about the underlying content
	GetMeta(ctx context.Context) (*FileMetadata, error)
}

// AdapterProvider is a factory for concrete [FileAdapter] implementations
// generated from a source's raw config.
// Implementations should handle resource management (connection pooling etc) for its adapters
type AdapterProvider interface {
	NewAdapter(config []byte) (FileAdapter, error)
}

// FileSource pairs a provider with the raw config its adapter is built from
type FileSource struct {
	Provider AdapterProvider
	Config   []byte
	Priority int // Lower number = higher priority
}

// FileMetadata contains standardized metadata across all adapter types
type FileMetadata struct {
	Size         uint64
	LastModified *time.Time
	Version      string         // Generic version identifier
	TTL          *time.Duration // Cache TTL: nil = default cache policy, 0 = no cache, >0 = cache for duration
}
