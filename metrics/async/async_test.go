package async

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	counts  map[string]int
	timings map[string][]time.Duration
	block   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{counts: map[string]int{}, timings: map[string][]time.Duration{}}
}

func (r *recorder) Incr(name string) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.counts[name]++
	r.mu.Unlock()
}

func (r *recorder) Timing(name string, d time.Duration) {
	r.mu.Lock()
	r.timings[name] = append(r.timings[name], d)
	r.mu.Unlock()
}

func TestForwardsAndDrainsOnClose(t *testing.T) {
	rec := newRecorder()
	s := New(rec, 2, 100)
	for i := 0; i < 50; i++ {
		s.Incr("requests.noop")
	}
	s.Timing("request_timing.noop", time.Millisecond)
	s.Close()

	if rec.counts["requests.noop"] != 50 {
		t.Fatalf("count = %d, want 50", rec.counts["requests.noop"])
	}
	if len(rec.timings["request_timing.noop"]) != 1 {
		t.Fatalf("timings = %v", rec.timings)
	}
	if s.Dropped() != 0 {
		t.Fatalf("dropped = %d", s.Dropped())
	}
}

func TestDropsWhenFull(t *testing.T) {
	rec := newRecorder()
	rec.block = make(chan struct{})
	s := New(rec, 1, 1)

	// first event occupies the worker, second fills the queue
	s.Incr("a")
	deadline := time.Now().Add(2 * time.Second)
	for len(s.q) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Incr("b")
	s.Incr("c")

	close(rec.block)
	s.Close()
	if s.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", s.Dropped())
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	s := New(newRecorder(), 1, 1)
	s.Close()
	s.Incr("late")
	s.Close()
	if s.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", s.Dropped())
	}
}
