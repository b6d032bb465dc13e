// Package async decouples a slow metrics sink from the request path.
//
// usage:
//
//	raw, _ := statsd.New(statsd.Config{Address: "127.0.0.1:8125"})
//	m := async.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer m.Close()
//
//	c := client.New(client.Options{Trackers: trackers, Metrics: m})
package async

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/mogilefs"
)

type Sink struct {
	inner   mogilefs.Metrics
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ mogilefs.Metrics = (*Sink)(nil)

func New(inner mogilefs.Metrics, workers, qlen int) *Sink {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	s := &Sink{inner: inner, q: make(chan func(), qlen)}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer s.wg.Done()
			for f := range s.q {
				f()
			}
		}()
	}
	return s
}

// Close drains queued events and stops the workers. Events sent after
// Close are dropped.
func (s *Sink) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.q)
		s.mu.Unlock()
		s.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed sink.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

func (s *Sink) try(f func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.q <- f:
	default: // drop
		s.dropped.Add(1)
	}
}

func (s *Sink) Incr(name string) { s.try(func() { s.inner.Incr(name) }) }

func (s *Sink) Timing(name string, d time.Duration) { s.try(func() { s.inner.Timing(name, d) }) }
