// Package gometrics records client metrics into an rcrowley/go-metrics
// registry, for processes that already export one.
package gometrics

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/unkn0wn-root/mogilefs"
)

type Sink struct {
	r metrics.Registry
}

var _ mogilefs.Metrics = (*Sink)(nil)

// New records into r, or into metrics.DefaultRegistry when r is nil. A
// non-empty prefix is joined to every name with a dot.
func New(r metrics.Registry, prefix string) *Sink {
	if r == nil {
		r = metrics.DefaultRegistry
	}
	if prefix != "" {
		r = metrics.NewPrefixedChildRegistry(r, prefix+".")
	}
	return &Sink{r: r}
}

func (s *Sink) Incr(name string) { metrics.GetOrRegisterCounter(name, s.r).Inc(1) }

func (s *Sink) Timing(name string, d time.Duration) { metrics.GetOrRegisterTimer(name, s.r).Update(d) }

// Registry is where the metrics land.
func (s *Sink) Registry() metrics.Registry { return s.r }
