// Package statsd sends client metrics to a statsd daemon over UDP.
package statsd

import (
	"time"

	"github.com/cactus/go-statsd-client/v5/statsd"

	"github.com/unkn0wn-root/mogilefs"
)

// DefaultPrefix matches the metric names other MogileFS clients emit.
const DefaultPrefix = "mogilefs_client"

type Config struct {
	// Address is host:port of the statsd daemon.
	Address string
	// Prefix is prepended to every stat. Default DefaultPrefix.
	Prefix string
	// FlushInterval > 0 batches stats into fewer packets.
	FlushInterval time.Duration
	// Rate is the sample rate, (0, 1]. Default 1.
	Rate float32
}

type Sink struct {
	s    statsd.Statter
	rate float32
}

var _ mogilefs.Metrics = (*Sink)(nil)

func New(cfg Config) (*Sink, error) {
	s, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address:       cfg.Address,
		Prefix:        mogilefs.Coalesce(cfg.Prefix, DefaultPrefix),
		UseBuffered:   cfg.FlushInterval > 0,
		FlushInterval: cfg.FlushInterval,
	})
	if err != nil {
		return nil, err
	}
	return NewWithStatter(s, cfg.Rate), nil
}

// NewWithStatter wraps an existing statter, e.g. statsd.NewNoopClient().
func NewWithStatter(s statsd.Statter, rate float32) *Sink {
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	return &Sink{s: s, rate: rate}
}

// Send errors are dropped; UDP delivery is best effort anyway.
func (k *Sink) Incr(name string) { _ = k.s.Inc(name, 1, k.rate) }

func (k *Sink) Timing(name string, d time.Duration) { _ = k.s.TimingDuration(name, d, k.rate) }

func (k *Sink) Close() error { return k.s.Close() }
