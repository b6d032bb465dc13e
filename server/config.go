package server

import (
	"fmt"
	"time"
)

// Acceptor selects how connections are scheduled onto the dispatcher.
type Acceptor string

const (
	// Threaded runs every connection, dispatch included, on its own goroutine.
	Threaded Acceptor = "threaded"
	// Evented funnels every request through one dispatch loop; connection
	// goroutines only read and write.
	Evented Acceptor = "evented"
)

// ParseAcceptor accepts "threaded" or "evented".
func ParseAcceptor(s string) (Acceptor, error) {
	switch a := Acceptor(s); a {
	case Threaded, Evented:
		return a, nil
	}
	return "", fmt.Errorf("server: unknown acceptor %q (want threaded or evented)", s)
}

type Config struct {
	BindAddr string
	Acceptor Acceptor

	// IdleTimeout bounds the wait for the next request to start.
	IdleTimeout time.Duration
	// ReadTimeout bounds reading the rest of a request line once it started.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration
	// MaxLineSize is the longest request line accepted, CRLF included.
	MaxLineSize int

	WriteBufSize int
	// EventQueue is the capacity of the evented dispatch queue.
	EventQueue int
}

// Default returns the settings used by mogilefsd.
func Default() Config {
	return Config{
		BindAddr:     "127.0.0.1:7001",
		Acceptor:     Threaded,
		IdleTimeout:  5 * time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		MaxLineSize:  64 << 10,
		WriteBufSize: 4 << 10,
		EventQueue:   1024,
	}
}

func (c Config) withDefaults() Config {
	d := Default()
	if c.BindAddr == "" {
		c.BindAddr = d.BindAddr
	}
	if c.Acceptor == "" {
		c.Acceptor = d.Acceptor
	}
	if c.MaxLineSize < 16 {
		c.MaxLineSize = d.MaxLineSize
	}
	if c.WriteBufSize <= 0 {
		c.WriteBufSize = d.WriteBufSize
	}
	if c.EventQueue <= 0 {
		c.EventQueue = d.EventQueue
	}
	return c
}
