package fidgen

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis shares the counter across tracker processes and survives restarts.
// The counter is a plain integer key advanced with INCR.
type Redis struct {
	rdb redis.UniversalClient
	ns  string // logical namespace; should match the backend namespace
}

var _ Generator = (*Redis)(nil)

// NewRedis creates a Redis-backed generator. The client is not owned:
// Close leaves it open.
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{rdb: client, ns: namespace}
}

func (g *Redis) key() string { return g.ns + ":fid" }

// Next atomically increments the counter.
func (g *Redis) Next(ctx context.Context) (uint64, error) {
	v, err := g.rdb.Incr(ctx, g.key()).Result()
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// Current returns the counter; a missing key reads as 0.
func (g *Redis) Current(ctx context.Context) (uint64, error) {
	res, err := g.rdb.Get(ctx, g.key()).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis fid parse: %w", err)
	}
	return u, nil
}

func (g *Redis) Close(context.Context) error { return nil }
