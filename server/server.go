// Package server accepts tracker connections and feeds their request lines
// to a Handler. Two acceptors are available; they share the connection
// code and are indistinguishable on the wire.
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/mogilefs"
	"github.com/unkn0wn-root/mogilefs/internal/wire"
)

// Handler turns one request line into one response line.
// *mogilefs.Tracker implements it.
type Handler interface {
	HandleLine(ctx context.Context, line []byte) []byte
}

var _ Handler = (*mogilefs.Tracker)(nil)

type dispatchFunc func(ctx context.Context, line []byte) []byte

var lineTooLong = wire.ErrLine(string(mogilefs.KindOther), "line too long")

type Server struct {
	cfg     Config
	handler Handler
	log     mogilefs.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	started bool

	stopOnce sync.Once
	wg       sync.WaitGroup

	jobs chan job // evented only
}

func New(cfg Config, h Handler, log mogilefs.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg.withDefaults(),
		handler: h,
		log:     mogilefs.LoggerOrNop(log),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start listens on BindAddr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		return err
	}
	if err := s.begin(ln); err != nil {
		_ = ln.Close()
		return err
	}
	return nil
}

// Serve serves ln until Stop is called. It always returns a non-nil error;
// after Stop that error is ErrClosed.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.begin(ln); err != nil {
		return err
	}
	<-s.ctx.Done()
	return ErrClosed
}

func (s *Server) begin(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	s.started = true
	s.ln = ln

	dispatch := s.handler.HandleLine
	if s.cfg.Acceptor == Evented {
		s.jobs = make(chan job, s.cfg.EventQueue)
		s.wg.Add(1)
		go s.eventLoop()
		dispatch = s.submit
	}

	s.wg.Add(1)
	go s.acceptLoop(ln, dispatch)
	s.log.Info("server: listening", mogilefs.Fields{"addr": ln.Addr().String(), "acceptor": string(s.cfg.Acceptor)})
	return nil
}

// Addr is the listening address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listener and every open connection, then waits for all
// goroutines to exit. It is idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.ln != nil {
			_ = s.ln.Close()
		}
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
}

// acceptLoop accepts inbound TCP connections and hands each to serveConn.
func (s *Server) acceptLoop(ln net.Listener, dispatch dispatchFunc) {
	defer s.wg.Done()
	tune := func(tc *net.TCPConn) {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(45 * time.Second)
	}

	var delay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			// transient (EMFILE and friends): back off like net/http does
			delay = min(max(2*delay, 5*time.Millisecond), time.Second)
			s.log.Warn("server: accept failed", mogilefs.Fields{"err": err, "retry_in": delay.String()})
			time.Sleep(delay)
			continue
		}
		delay = 0
		if tc, ok := c.(*net.TCPConn); ok {
			tune(tc)
		}
		if !s.track(c) {
			_ = c.Close()
			return
		}
		s.wg.Add(1)
		go s.serveConn(c, dispatch)
	}
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// serveConn handles one connection: read a line, dispatch it, write the
// response, repeat. A response is flushed before the next line is read.
// A peer that closes mid-line gets no response.
func (s *Server) serveConn(c net.Conn, dispatch dispatchFunc) {
	defer s.wg.Done()
	defer s.untrack(c)
	defer c.Close()

	id := uuid.NewString()
	fields := mogilefs.Fields{"conn": id, "remote": c.RemoteAddr().String()}
	s.log.Debug("server: conn open", fields)

	r := bufio.NewReaderSize(c, s.cfg.MaxLineSize)
	w := bufio.NewWriterSize(c, s.cfg.WriteBufSize)

	for {
		line, err := s.readLine(c, r)
		if errors.Is(err, bufio.ErrBufferFull) {
			s.log.Warn("server: request line too long", fields)
			_ = s.write(c, w, lineTooLong)
			return
		}
		if err != nil {
			if !isDisconnect(err) {
				s.log.Warn("server: read failed", mogilefs.Fields{"conn": id, "err": err})
			}
			s.log.Debug("server: conn closed", fields)
			return
		}

		resp := dispatch(s.ctx, line)
		if resp == nil {
			return
		}
		if err := s.write(c, w, resp); err != nil {
			if !isDisconnect(err) {
				s.log.Warn("server: write failed", mogilefs.Fields{"conn": id, "err": err})
			}
			return
		}
	}
}

// readLine waits up to IdleTimeout for a request to start and then up to
// ReadTimeout for its terminating newline. The returned slice is only
// valid until the next read.
func (s *Server) readLine(c net.Conn, r *bufio.Reader) ([]byte, error) {
	if s.cfg.IdleTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	}
	if _, err := r.Peek(1); err != nil {
		return nil, err
	}
	if s.cfg.ReadTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	return r.ReadSlice('\n')
}

func (s *Server) write(c net.Conn, w *bufio.Writer, resp []byte) error {
	if s.cfg.WriteTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if _, err := w.Write(resp); err != nil {
		return err
	}
	return w.Flush()
}
