// Package ristretto is a content cache backed by dgraph-io/ristretto.
// Admission is cost based: each entry costs its length in bytes, so MaxCost
// is a memory budget.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/mogilefs/cache"
)

type Provider struct {
	c   *rc.Cache
	ttl time.Duration
}

var _ cache.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes
	BufferItems int64
	Metrics     bool
	// TTL bounds how long an entry may live; 0 keeps entries until evicted.
	TTL time.Duration
}

// DefaultConfig budgets maxBytes of content.
func DefaultConfig(maxBytes int64) Config {
	return Config{
		NumCounters: max(maxBytes/1024, 1000) * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	}
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, ttl: cfg.TTL}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set is asynchronous: a successful Set becomes visible to Get shortly
// after, or never if the admission policy drops it.
func (p *Provider) Set(_ context.Context, key string, value []byte) (bool, error) {
	return p.c.SetWithTTL(key, value, int64(len(value)), p.ttl), nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

// Wait blocks until buffered writes are applied.
func (p *Provider) Wait() { p.c.Wait() }

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's hit/miss counters when Config.Metrics is set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
