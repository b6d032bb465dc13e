package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestSendsPrefixedStats(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()

	s, err := New(Config{Address: pc.LocalAddr().String()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Incr("requests.noop")
	s.Timing("request_timing.noop", 15*time.Millisecond)

	want := []struct{ prefix, suffix string }{
		{"mogilefs_client.requests.noop:1", "|c"},
		{"mogilefs_client.request_timing.noop:15", "|ms"},
	}
	buf := make([]byte, 1024)
	for _, w := range want {
		_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			t.Fatalf("waiting for %q: %v", w.prefix, err)
		}
		got := strings.TrimSpace(string(buf[:n]))
		if !strings.HasPrefix(got, w.prefix) || !strings.HasSuffix(got, w.suffix) {
			t.Fatalf("packet = %q, want %s...%s", got, w.prefix, w.suffix)
		}
	}
}

func TestRateIsClamped(t *testing.T) {
	for _, r := range []float32{-1, 0, 2} {
		if s := NewWithStatter(nil, r); s.rate != 1 {
			t.Fatalf("rate %v -> %v, want 1", r, s.rate)
		}
	}
	if s := NewWithStatter(nil, 0.5); s.rate != 0.5 {
		t.Fatalf("rate = %v", s.rate)
	}
}
