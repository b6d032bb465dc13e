package client

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"

	"github.com/unkn0wn-root/mogilefs"
)

// StoreData uploads the bytes of r under key in two phases: create_open
// reserves the key and returns destinations, the bytes are PUT to one of
// them, then create_close reports where they went. When the upload fails
// no create_close is sent and the reserved key stays behind; delete it if
// that matters.
func (c *Client) StoreData(ctx context.Context, domain, class, key string, r io.Reader) error {
	return c.store(ctx, domain, class, key, r, -1)
}

// StoreFile is StoreData for the contents of the file at path.
func (c *Client) StoreFile(ctx context.Context, domain, class, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	return c.store(ctx, domain, class, key, f, st.Size())
}

// store runs the upload; size is -1 when unknown.
func (c *Client) store(ctx context.Context, domain, class, key string, body io.Reader, size int64) error {
	open := &mogilefs.CreateOpen{Domain: domain, Key: key, Class: class, MultiDest: true}
	if size >= 0 {
		open.Size = &size
	}
	dests, err := c.CreateOpen(ctx, open)
	if err != nil {
		return err
	}
	if len(dests.Paths) == 0 {
		return mogilefs.NewError(mogilefs.KindNoPath, key)
	}
	dest := dests.Paths[rand.IntN(len(dests.Paths))]

	c.opts.Logger.Debug("client: storing", mogilefs.Fields{"domain": domain, "key": key, "url": dest.URL})
	if err := c.put(ctx, dest.URL, body, size); err != nil {
		c.opts.Logger.Warn("client: upload failed", mogilefs.Fields{"domain": domain, "key": key, "err": err})
		return err
	}

	return c.CreateClose(ctx, &mogilefs.CreateClose{
		Domain: domain,
		Key:    key,
		Fid:    dests.Fid,
		Devid:  dest.Devid,
		Path:   dest.URL,
	})
}

func (c *Client) put(ctx context.Context, url string, body io.Reader, size int64) error {
	if size == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return mogilefs.StorageError("could not store to "+url, err)
	}
	if size > 0 {
		req.ContentLength = size
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return mogilefs.StorageError("could not store to "+url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	default:
		return mogilefs.StorageError(fmt.Sprintf("bad response from storage server %s: %s", url, resp.Status), nil)
	}
}
