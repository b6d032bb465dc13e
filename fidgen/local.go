package fidgen

import (
	"context"
	"sync/atomic"
)

// Local keeps the counter in-process (default). Ids restart at 1 with the
// process.
type Local struct {
	n atomic.Uint64
}

var _ Generator = (*Local)(nil)

func NewLocal() *Local { return &Local{} }

// NewLocalFrom returns a generator whose first id is last+1.
func NewLocalFrom(last uint64) *Local {
	l := &Local{}
	l.n.Store(last)
	return l
}

func (l *Local) Next(context.Context) (uint64, error) { return l.n.Add(1), nil }

func (l *Local) Current(context.Context) (uint64, error) { return l.n.Load(), nil }

func (l *Local) Close(context.Context) error { return nil }
