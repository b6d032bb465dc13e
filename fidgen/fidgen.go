// Package fidgen hands out file ids. Ids are positive, strictly increasing
// and never reused for the lifetime of the generator's storage.
package fidgen

import "context"

// Generator abstracts where the fid counter lives.
// Use Local for a single tracker process, or Redis when several trackers
// share one namespace.
type Generator interface {
	// Next atomically increments the counter and returns the new fid.
	Next(ctx context.Context) (uint64, error)
	// Current returns the last fid handed out; 0 when none was.
	Current(ctx context.Context) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
