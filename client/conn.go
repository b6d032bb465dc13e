package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// state is the lifecycle of the client's single tracker connection.
//
//	noConn --connect ok--> connected --i/o error--> failed
//	failed --takeErr--> noConn
type state uint8

const (
	stateNoConn state = iota
	stateConnected
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateFailed:
		return "failed"
	default:
		return "no_conn"
	}
}

// link holds at most one live connection. Every step is a no-op unless the
// link is connected, so a request attempt can run connect, write and read
// unconditionally and inspect the state afterwards.
type link struct {
	state state
	addr  string
	conn  net.Conn
	r     *bufio.Reader
	w     *bufio.Writer
	// err is set only in stateFailed.
	err error

	maxLine int
}

func (l *link) connect(ctx context.Context, d *net.Dialer, addr string) {
	if l.state == stateConnected {
		return
	}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		l.addr = addr
		l.fail(err)
		return
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(45 * time.Second)
	}
	l.state = stateConnected
	l.addr = addr
	l.conn = c
	l.r = bufio.NewReaderSize(c, l.maxLine)
	l.w = bufio.NewWriter(c)
	l.err = nil
}

func (l *link) writeLine(line []byte, deadline time.Time) {
	if l.state != stateConnected {
		return
	}
	_ = l.conn.SetWriteDeadline(deadline)
	if _, err := l.w.Write(line); err != nil {
		l.fail(err)
		return
	}
	if err := l.w.Flush(); err != nil {
		l.fail(err)
	}
}

// readLine reads up to and including the next '\n'.
func (l *link) readLine(deadline time.Time) []byte {
	if l.state != stateConnected {
		return nil
	}
	_ = l.conn.SetReadDeadline(deadline)
	line, err := l.r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			err = fmt.Errorf("response line exceeds %d bytes", l.maxLine)
		}
		l.fail(err)
		return nil
	}
	return append([]byte(nil), line...)
}

// fail drops the connection and keeps err for takeErr. addr is kept so the
// caller can tell which tracker failed.
func (l *link) fail(err error) {
	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.conn, l.r, l.w = nil, nil, nil
	l.state = stateFailed
	l.err = err
}

// takeErr harvests the stored error, if any, and resets to noConn.
func (l *link) takeErr() error {
	if l.state != stateFailed {
		return nil
	}
	err := l.err
	l.state, l.err, l.addr = stateNoConn, nil, ""
	return err
}

func (l *link) peerAddr() net.Addr {
	if l.state != stateConnected {
		return nil
	}
	return l.conn.RemoteAddr()
}

func (l *link) close() error {
	var err error
	if l.conn != nil {
		err = l.conn.Close()
	}
	*l = link{maxLine: l.maxLine}
	return err
}
