package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/mogilefs"
	"github.com/unkn0wn-root/mogilefs/backend/mem"
)

var acceptors = []Acceptor{Threaded, Evented}

func startServer(t *testing.T, a Acceptor, mutate func(*Config)) *Server {
	t.Helper()
	b, err := mem.NewWithBase("http://host/base")
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{BindAddr: "127.0.0.1:0", Acceptor: a}
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg, mogilefs.NewTracker(b, nil), nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Stop)
	return s
}

type conn struct {
	t *testing.T
	c net.Conn
	r *bufio.Reader
}

func dial(t *testing.T, s *Server) *conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return &conn{t: t, c: c, r: bufio.NewReader(c)}
}

func (c *conn) roundTrip(req string) string {
	c.t.Helper()
	_ = c.c.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.c.Write([]byte(req)); err != nil {
		c.t.Fatal(err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read response to %q: %v", req, err)
	}
	return line
}

func TestScenarios(t *testing.T) {
	for _, a := range acceptors {
		t.Run(string(a), func(t *testing.T) {
			c := dial(t, startServer(t, a, nil))

			steps := []struct{ req, want string }{
				{"noop\r\n", "OK \r\n"},
				{"create_domain domain=td\r\n", "OK domain=td\r\n"},
				{"create_domain domain=td\r\n", "ERR domain_exists td\r\n"},
				{"create_open domain=td&key=a/b\r\n", "OK fid=1&dev_count=1&devid_1=1&path_1=http%3A%2F%2Fhost%2Fbase%2Fd%2Ftd%2Fk%2Fa%2Fb\r\n"},
				{"get_paths domain=td&key=missing\r\n", "ERR unknown_key missing\r\n"},
				{"bogus\r\n", "ERR unknown_command bogus\r\n"},
				{"\r\n", "ERR unknown_command \r\n"},
				{"get_paths key=x\r\n", "ERR no_domain \r\n"},
				// bare \n framing is accepted too
				{"noop\n", "OK \r\n"},
			}
			for _, st := range steps {
				if got := c.roundTrip(st.req); got != st.want {
					t.Fatalf("%q -> %q, want %q", st.req, got, st.want)
				}
			}
		})
	}
}

func TestLineTooLong(t *testing.T) {
	for _, a := range acceptors {
		t.Run(string(a), func(t *testing.T) {
			s := startServer(t, a, func(c *Config) { c.MaxLineSize = 64 })
			c := dial(t, s)
			got := c.roundTrip("create_domain domain=" + strings.Repeat("x", 200) + "\r\n")
			if got != "ERR other line+too+long\r\n" {
				t.Fatalf("got %q", got)
			}
			if _, err := c.r.ReadByte(); err == nil {
				t.Fatal("connection still open after oversized line")
			}
		})
	}
}

func TestConcurrentClients(t *testing.T) {
	for _, a := range acceptors {
		t.Run(string(a), func(t *testing.T) {
			s := startServer(t, a, nil)

			const clients, per = 8, 25
			var wg sync.WaitGroup
			errs := make(chan error, clients)
			for i := 0; i < clients; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					c, err := net.Dial("tcp", s.Addr().String())
					if err != nil {
						errs <- err
						return
					}
					defer c.Close()
					r := bufio.NewReader(c)
					for j := 0; j < per; j++ {
						fmt.Fprintf(c, "create_open domain=d&key=c%d/%d\r\n", i, j)
						line, err := r.ReadString('\n')
						if err != nil {
							errs <- err
							return
						}
						if !strings.HasPrefix(line, "OK fid=") {
							errs <- fmt.Errorf("client %d: %q", i, line)
							return
						}
					}
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatal(err)
			}

			c := dial(t, s)
			got := c.roundTrip("list_keys domain=d&limit=1000\r\n")
			if !strings.HasPrefix(got, fmt.Sprintf("OK key_count=%d&", clients*per)) {
				t.Fatalf("list_keys = %.80q", got)
			}
		})
	}
}

func TestPeerCloseMidLine(t *testing.T) {
	s := startServer(t, Threaded, nil)
	c := dial(t, s)
	if _, err := c.c.Write([]byte("create_domain domain=half")); err != nil {
		t.Fatal(err)
	}
	_ = c.c.Close()

	// the partial line must not have been dispatched
	c2 := dial(t, s)
	if got := c2.roundTrip("create_domain domain=half\r\n"); got != "OK domain=half\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestIdleTimeoutClosesConn(t *testing.T) {
	s := startServer(t, Threaded, func(c *Config) { c.IdleTimeout = 50 * time.Millisecond })
	c := dial(t, s)
	_ = c.c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.r.ReadByte(); err == nil {
		t.Fatal("expected server to close idle connection")
	}
}

func TestStopClosesConnections(t *testing.T) {
	for _, a := range acceptors {
		t.Run(string(a), func(t *testing.T) {
			s := startServer(t, a, nil)
			c := dial(t, s)
			if got := c.roundTrip("noop\r\n"); got != "OK \r\n" {
				t.Fatalf("got %q", got)
			}
			done := make(chan struct{})
			go func() { s.Stop(); close(done) }()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("Stop did not return")
			}
			_ = c.c.SetReadDeadline(time.Now().Add(2 * time.Second))
			if _, err := c.r.ReadByte(); err == nil {
				t.Fatal("connection survived Stop")
			}
			if err := s.Start(); err == nil {
				t.Fatal("Start after Stop succeeded")
			}
		})
	}
}

type panicky struct{}

func (panicky) HandleLine(context.Context, []byte) []byte { panic("boom") }

func TestHandlerPanicIsContainedByTracker(t *testing.T) {
	tr := mogilefs.NewTracker(panicBackend{}, nil)
	s := New(Config{BindAddr: "127.0.0.1:0"}, tr, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Stop)
	c := dial(t, s)
	if got := c.roundTrip("delete domain=d&key=k\r\n"); got != "ERR other internal+error\r\n" {
		t.Fatalf("got %q", got)
	}
	if got := c.roundTrip("noop\r\n"); got != "OK \r\n" {
		t.Fatalf("connection unusable after panic: %q", got)
	}
}

// panicBackend panics on delete.
type panicBackend struct{ mogilefs.TrackerBackend }

func (panicBackend) Delete(context.Context, *mogilefs.Delete) error { panic("boom") }

func TestParseAcceptor(t *testing.T) {
	for _, s := range []string{"threaded", "evented"} {
		if a, err := ParseAcceptor(s); err != nil || string(a) != s {
			t.Fatalf("ParseAcceptor(%q) = %q, %v", s, a, err)
		}
	}
	if _, err := ParseAcceptor("forked"); err == nil {
		t.Fatal("expected error")
	}
}

func TestServeReturnsErrClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := New(Config{}, panicky{}, nil)
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	select {
	case err := <-errc:
		if err != ErrClosed {
			t.Fatalf("Serve = %v, want ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
