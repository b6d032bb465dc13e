// Package client talks to MogileFS trackers.
//
// A Client keeps at most one tracker connection and serialises requests on
// it. Each request is tried up to MaxAttempts times; when the connection
// breaks, the next attempt dials a randomly chosen tracker, preferring ones
// that have not failed during the same request. Error responses from the
// tracker and malformed responses are returned as they are, never retried.
package client

import (
	"context"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/unkn0wn-root/mogilefs"
	"github.com/unkn0wn-root/mogilefs/internal/wire"
)

type Client struct {
	opts     Options
	trackers []string
	dialer   *net.Dialer

	mu   sync.Mutex
	link link
}

// New returns a client for opts.Trackers. No connection is made until the
// first request; an empty tracker list fails every request with
// no_trackers.
func New(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts:     opts,
		trackers: append([]string(nil), opts.Trackers...),
		dialer:   &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 45 * time.Second},
		link:     link{maxLine: opts.MaxLineSize},
	}
}

// Do sends req and decodes the answer.
func (c *Client) Do(ctx context.Context, req mogilefs.Request) (mogilefs.Response, error) {
	op := req.Op()
	start := time.Now()
	defer func() { c.opts.Metrics.Timing("request_timing."+op, time.Since(start)) }()

	line, err := c.roundTrip(ctx, op, mogilefs.Line(req))
	if err != nil {
		return nil, err
	}
	resp, err := parseResponse(req, line)
	if err != nil {
		c.opts.Logger.Debug("client: request failed", mogilefs.Fields{"op": op, "kind": string(mogilefs.KindOf(err)), "err": err})
		return nil, err
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, op string, reqLine []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		resp  []byte
		tried map[string]struct{}
	)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.opts.Metrics.Incr("requests." + op)

		if c.link.state != stateConnected {
			addr, err := c.pick(tried)
			if err != nil {
				return nil, err
			}
			c.link.connect(ctx, c.dialer, addr)
		}
		c.link.writeLine(reqLine, deadline(ctx, c.opts.WriteTimeout))
		resp = c.link.readLine(deadline(ctx, c.opts.ReadTimeout))

		if c.link.state == stateConnected || attempt >= MaxAttempts {
			break
		}
		addr := c.link.addr
		err := c.link.takeErr()
		c.opts.Logger.Warn("client: attempt failed", mogilefs.Fields{
			"op": op, "tracker": addr, "attempt": attempt, "err": err,
		})
		if tried == nil {
			tried = make(map[string]struct{}, len(c.trackers))
		}
		tried[addr] = struct{}{}
	}

	if addr := c.link.addr; c.link.state == stateFailed {
		err := c.link.takeErr()
		c.opts.Logger.Warn("client: request failed", mogilefs.Fields{"op": op, "tracker": addr, "err": err})
		return nil, mogilefs.IOError(err)
	}
	return resp, nil
}

// pick chooses a tracker uniformly at random among those not in tried, or
// among all of them once every tracker has failed.
func (c *Client) pick(tried map[string]struct{}) (string, error) {
	if len(c.trackers) == 0 {
		return "", mogilefs.NewError(mogilefs.KindNoTrackers, "")
	}
	fresh := c.trackers
	if len(tried) > 0 {
		fresh = make([]string, 0, len(c.trackers))
		for _, t := range c.trackers {
			if _, failed := tried[t]; !failed {
				fresh = append(fresh, t)
			}
		}
		if len(fresh) == 0 {
			fresh = c.trackers
		}
	}
	return fresh[rand.IntN(len(fresh))], nil
}

// deadline is now+d, or the context deadline when that comes first.
func deadline(ctx context.Context, d time.Duration) time.Time {
	t := time.Now().Add(d)
	if dl, ok := ctx.Deadline(); ok && dl.Before(t) {
		return dl
	}
	return t
}

func parseResponse(req mogilefs.Request, line []byte) (mogilefs.Response, error) {
	r := wire.ParseResponse(line)
	switch r.Status {
	case wire.StatusOK:
		return req.ParseResponse(r.Args)
	case wire.StatusErr:
		return nil, mogilefs.NewError(mogilefs.Kind(r.Kind), r.Description)
	default:
		return nil, mogilefs.NewError(mogilefs.KindUnknownResponse, r.Token)
	}
}

// IsConnected reports whether a tracker connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link.state == stateConnected
}

// PeerAddr is the address of the connected tracker, nil when disconnected.
func (c *Client) PeerAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link.peerAddr()
}

// Close drops the tracker connection. The client stays usable; the next
// request reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link.close()
}

func call[R mogilefs.Response](ctx context.Context, c *Client, req mogilefs.Request) (R, error) {
	var zero R
	resp, err := c.Do(ctx, req)
	if err != nil {
		return zero, err
	}
	r, ok := resp.(R)
	if !ok {
		return zero, mogilefs.NewError(mogilefs.KindBadResponse, req.Op())
	}
	return r, nil
}

func (c *Client) Noop(ctx context.Context) error {
	_, err := c.Do(ctx, &mogilefs.Noop{})
	return err
}

func (c *Client) CreateDomain(ctx context.Context, domain string) (*mogilefs.CreateDomainResponse, error) {
	return call[*mogilefs.CreateDomainResponse](ctx, c, &mogilefs.CreateDomain{Domain: domain})
}

func (c *Client) CreateClass(ctx context.Context, req *mogilefs.CreateClass) (*mogilefs.CreateClassResponse, error) {
	return call[*mogilefs.CreateClassResponse](ctx, c, req)
}

func (c *Client) CreateOpen(ctx context.Context, req *mogilefs.CreateOpen) (*mogilefs.CreateOpenResponse, error) {
	return call[*mogilefs.CreateOpenResponse](ctx, c, req)
}

func (c *Client) CreateClose(ctx context.Context, req *mogilefs.CreateClose) error {
	_, err := c.Do(ctx, req)
	return err
}

func (c *Client) GetPaths(ctx context.Context, domain, key string) (*mogilefs.GetPathsResponse, error) {
	return call[*mogilefs.GetPathsResponse](ctx, c, &mogilefs.GetPaths{Domain: domain, Key: key})
}

func (c *Client) FileInfo(ctx context.Context, domain, key string) (*mogilefs.FileInfoResponse, error) {
	return call[*mogilefs.FileInfoResponse](ctx, c, &mogilefs.FileInfo{Domain: domain, Key: key})
}

func (c *Client) Rename(ctx context.Context, domain, from, to string) error {
	_, err := c.Do(ctx, &mogilefs.Rename{Domain: domain, FromKey: from, ToKey: to})
	return err
}

func (c *Client) UpdateClass(ctx context.Context, domain, key, class string) error {
	_, err := c.Do(ctx, &mogilefs.UpdateClass{Domain: domain, Key: key, Class: class})
	return err
}

func (c *Client) Delete(ctx context.Context, domain, key string) error {
	_, err := c.Do(ctx, &mogilefs.Delete{Domain: domain, Key: key})
	return err
}

// ListKeys returns one page. Pass the previous page's NextAfter as
// req.After to continue.
func (c *Client) ListKeys(ctx context.Context, req *mogilefs.ListKeys) (*mogilefs.ListKeysResponse, error) {
	return call[*mogilefs.ListKeysResponse](ctx, c, req)
}
