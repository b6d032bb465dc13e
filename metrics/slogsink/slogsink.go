// Package slogsink writes client metrics as slog records. Useful in
// development, or where no metrics pipeline exists.
package slogsink

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/mogilefs"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	IncrEvery   uint64
	TimingEvery uint64
	// Level of the emitted records. Default slog.LevelDebug.
	Level slog.Level
	// SlowThreshold promotes timings at or above it to Warn; 0 disables.
	SlowThreshold time.Duration
}

type Sink struct {
	l    *slog.Logger
	opts Options

	incrCtr   atomic.Uint64
	timingCtr atomic.Uint64
}

var _ mogilefs.Metrics = (*Sink)(nil)

func New(l *slog.Logger, opts Options) *Sink {
	return &Sink{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (s *Sink) Incr(name string) {
	if s.l == nil || !sample(s.opts.IncrEvery, &s.incrCtr) {
		return
	}
	s.l.Log(context.Background(), s.opts.Level, "mogilefs.counter", "name", name)
}

func (s *Sink) Timing(name string, d time.Duration) {
	if s.l == nil {
		return
	}
	if s.opts.SlowThreshold > 0 && d >= s.opts.SlowThreshold {
		s.l.Warn("mogilefs.slow_request", "name", name, "duration", d)
		return
	}
	if !sample(s.opts.TimingEvery, &s.timingCtr) {
		return
	}
	s.l.Log(context.Background(), s.opts.Level, "mogilefs.timing", "name", name, "duration", d)
}
