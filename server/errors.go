package server

import (
	"errors"
	"io"
	"net"
	"syscall"
)

var (
	ErrStarted = errors.New("server: already started")
	ErrClosed  = errors.New("server: closed")
)

// isDisconnect reports whether err only means the peer went away or the
// server is shutting down, as opposed to something worth a warning.
func isDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
