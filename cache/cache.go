// Package cache defines the content cache a storage node may keep in front
// of its backend. Entries are immutable: a key names one version of one
// file, so a rewrite simply produces a new key and nothing is ever updated
// in place.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Provider is a byte store for file contents.
// Must be safe for concurrent use and byte-for-byte transparent: Get returns
// exactly the []byte previously passed to Set for the same key. Callers must
// not modify returned slices.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. Returns ok=false when the store rejected the write
	// under pressure or because the entry is too large.
	Set(ctx context.Context, key string, value []byte) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Key names the cached content of domain/key as last written at mtime.
// The domain and key are hashed so provider keys stay short and bounded.
func Key(domain, key string, mtime time.Time) string {
	d := xxhash.New()
	_, _ = d.WriteString(domain)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(key)
	return "c:" + strconv.FormatUint(d.Sum64(), 36) + ":" + strconv.FormatInt(mtime.UnixNano(), 36)
}
