// Package mem is the in-memory reference backend. It provides both the
// tracker and the storage capability, so a single process can serve the
// whole protocol end to end. Nothing survives a restart.
package mem

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/unkn0wn-root/mogilefs"
	"github.com/unkn0wn-root/mogilefs/fidgen"
)

const btreeDegree = 32

// Options configures a Backend. BaseURL is required.
type Options struct {
	// BaseURL is the storage node every destination points at.
	BaseURL *url.URL
	// Strict rejects operations on domains that were never created with
	// unreg_domain instead of creating them on demand.
	Strict bool
	// Devid is reported for the single destination. Default 1.
	Devid uint64
	// Fids hands out file ids. Default: an in-process counter.
	Fids fidgen.Generator
	// Now stamps materialised files. Default time.Now.
	Now func() time.Time
}

// Backend keeps domains in a map and each domain's files in a B-tree
// ordered by key. One RWMutex guards all of it; it is never held while
// reading from or writing to a caller's stream.
type Backend struct {
	mu      sync.RWMutex
	domains map[string]*domain

	base   *url.URL
	strict bool
	devid  uint64
	fids   fidgen.Generator
	now    func() time.Time
}

var _ mogilefs.Backend = (*Backend)(nil)

type domain struct {
	files *btree.BTreeG[*mogilefs.File]
}

func byKey(a, b *mogilefs.File) bool { return a.Key < b.Key }

func newDomain() *domain {
	return &domain{files: btree.NewG(btreeDegree, byKey)}
}

func (d *domain) get(key string) (*mogilefs.File, bool) {
	return d.files.Get(&mogilefs.File{Key: key})
}

func (d *domain) remove(key string) (*mogilefs.File, bool) {
	return d.files.Delete(&mogilefs.File{Key: key})
}

// New returns an empty backend.
func New(opts Options) (*Backend, error) {
	if opts.BaseURL == nil {
		return nil, mogilefs.NewError(mogilefs.KindOther, "mem: BaseURL is required")
	}
	b := &Backend{
		domains: make(map[string]*domain),
		base:    opts.BaseURL,
		strict:  opts.Strict,
		devid:   mogilefs.Coalesce(opts.Devid, 1),
		fids:    opts.Fids,
		now:     opts.Now,
	}
	if b.fids == nil {
		b.fids = fidgen.NewLocal()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// NewWithBase is New with a base URL given as a string.
func NewWithBase(base string) (*Backend, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, mogilefs.WrapError(mogilefs.KindOther, "mem: invalid base url", err)
	}
	return New(Options{BaseURL: u})
}

// lookup finds a domain for reading. Caller holds mu.
func (b *Backend) lookup(name string) (*domain, error) {
	d, ok := b.domains[name]
	if !ok && b.strict {
		return nil, mogilefs.UnregDomain(name)
	}
	return d, nil
}

// domainMut finds or, in lenient mode, creates a domain. Caller holds mu
// exclusively.
func (b *Backend) domainMut(name string) (*domain, error) {
	if d, ok := b.domains[name]; ok {
		return d, nil
	}
	if b.strict {
		return nil, mogilefs.UnregDomain(name)
	}
	d := newDomain()
	b.domains[name] = d
	return d, nil
}

// file returns the record for key or unknown_key. Caller holds mu.
func (b *Backend) file(domainName, key string) (*mogilefs.File, error) {
	d, err := b.lookup(domainName)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, mogilefs.UnknownKey(key)
	}
	f, ok := d.get(key)
	if !ok {
		return nil, mogilefs.UnknownKey(key)
	}
	return f, nil
}

func (b *Backend) CreateDomain(_ context.Context, req *mogilefs.CreateDomain) (*mogilefs.CreateDomainResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.domains[req.Domain]; ok {
		return nil, mogilefs.DomainExists(req.Domain)
	}
	b.domains[req.Domain] = newDomain()
	return &mogilefs.CreateDomainResponse{Domain: req.Domain}, nil
}

// CreateClass is accepted without effect; classes carry no policy here.
func (b *Backend) CreateClass(_ context.Context, req *mogilefs.CreateClass) (*mogilefs.CreateClassResponse, error) {
	b.mu.RLock()
	_, err := b.lookup(req.Domain)
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return &mogilefs.CreateClassResponse{Domain: req.Domain, Class: req.Class, MinDevCount: req.MinDevCount}, nil
}

// CreateOpen reserves key, replacing any previous record under it.
func (b *Backend) CreateOpen(ctx context.Context, req *mogilefs.CreateOpen) (*mogilefs.CreateOpenResponse, error) {
	fid, err := b.fids.Next(ctx)
	if err != nil {
		return nil, mogilefs.WrapError(mogilefs.KindOther, "fid", err)
	}

	b.mu.Lock()
	d, err := b.domainMut(req.Domain)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	d.files.ReplaceOrInsert(&mogilefs.File{Fid: fid, Key: req.Key, Class: req.Class})
	b.mu.Unlock()

	return &mogilefs.CreateOpenResponse{
		Fid: fid,
		Paths: []mogilefs.Destination{{
			Devid: b.devid,
			URL:   b.URLForKey(req.Domain, req.Key).String(),
		}},
	}, nil
}

// CreateClose does not change state: the storage write already
// materialised the file.
func (b *Backend) CreateClose(_ context.Context, req *mogilefs.CreateClose) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, err := b.lookup(req.Domain)
	return err
}

func (b *Backend) GetPaths(_ context.Context, req *mogilefs.GetPaths) (*mogilefs.GetPathsResponse, error) {
	b.mu.RLock()
	_, err := b.file(req.Domain, req.Key)
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return &mogilefs.GetPathsResponse{Paths: []string{b.URLForKey(req.Domain, req.Key).String()}}, nil
}

func (b *Backend) FileInfo(_ context.Context, req *mogilefs.FileInfo) (*mogilefs.FileInfoResponse, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, err := b.file(req.Domain, req.Key)
	if err != nil {
		return nil, err
	}
	md, err := f.Metadata()
	if err != nil {
		return nil, err
	}
	return &mogilefs.FileInfoResponse{
		Domain:   req.Domain,
		Key:      f.Key,
		Length:   md.Size,
		Fid:      f.Fid,
		DevCount: 1,
		Class:    mogilefs.Coalesce(f.Class, mogilefs.DefaultClass),
	}, nil
}

// Rename moves the record, keeping fid, content and mtime.
func (b *Backend) Rename(_ context.Context, req *mogilefs.Rename) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.lookup(req.Domain)
	if err != nil {
		return err
	}
	if d == nil {
		return mogilefs.UnknownKey(req.FromKey)
	}
	if _, ok := d.get(req.ToKey); ok {
		return mogilefs.KeyExists(req.ToKey)
	}
	f, ok := d.remove(req.FromKey)
	if !ok {
		return mogilefs.UnknownKey(req.FromKey)
	}
	moved := *f
	moved.Key = req.ToKey
	d.files.ReplaceOrInsert(&moved)
	return nil
}

// UpdateClass records the class when the key exists and is otherwise
// silently accepted.
func (b *Backend) UpdateClass(_ context.Context, req *mogilefs.UpdateClass) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.lookup(req.Domain)
	if err != nil || d == nil {
		return err
	}
	if f, ok := d.get(req.Key); ok {
		updated := *f
		updated.Class = req.Class
		d.files.ReplaceOrInsert(&updated)
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, req *mogilefs.Delete) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.lookup(req.Domain)
	if err != nil {
		return err
	}
	if d == nil {
		return mogilefs.UnknownKey(req.Key)
	}
	if _, ok := d.remove(req.Key); !ok {
		return mogilefs.UnknownKey(req.Key)
	}
	return nil
}

// ListKeys walks keys in ascending order starting at max(prefix, after),
// skips after itself and stops at the first key outside prefix.
func (b *Backend) ListKeys(_ context.Context, req *mogilefs.ListKeys) (*mogilefs.ListKeysResponse, error) {
	limit := req.PageLimit()
	resp := &mogilefs.ListKeysResponse{Keys: make([]string, 0, min(limit, 64))}

	b.mu.RLock()
	defer b.mu.RUnlock()
	d, err := b.lookup(req.Domain)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return resp, nil
	}

	start := max(req.Prefix, req.After)
	d.files.AscendGreaterOrEqual(&mogilefs.File{Key: start}, func(f *mogilefs.File) bool {
		if !strings.HasPrefix(f.Key, req.Prefix) {
			return false
		}
		if req.After != "" && f.Key <= req.After {
			return true
		}
		resp.Keys = append(resp.Keys, f.Key)
		return len(resp.Keys) < limit
	})
	return resp, nil
}

// URLForKey is the canonical storage URL of key under the base URL.
func (b *Backend) URLForKey(domainName, key string) *url.URL {
	return mogilefs.StorageURL(b.base, domainName, key)
}

func (b *Backend) FileMetadata(_ context.Context, domainName, key string) (mogilefs.StorageMetadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, err := b.file(domainName, key)
	if err != nil {
		return mogilefs.StorageMetadata{}, err
	}
	return f.Metadata()
}

// StoreReaderContent drains r before taking the lock.
func (b *Backend) StoreReaderContent(ctx context.Context, domainName, key string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return mogilefs.StorageError("read body", err)
	}
	return b.StoreBytesContent(ctx, domainName, key, content)
}

// StoreBytesContent materialises a reserved file. Keys that were never
// opened are rejected with unknown_key. content is retained.
func (b *Backend) StoreBytesContent(_ context.Context, domainName, key string, content []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := b.file(domainName, key)
	if err != nil {
		return err
	}
	stored := *f
	stored.Content = content
	stored.Size = int64(len(content))
	stored.Mtime = b.now().UTC()
	b.domains[domainName].files.ReplaceOrInsert(&stored)
	return nil
}

// GetContent writes the stored bytes of key to w.
func (b *Backend) GetContent(_ context.Context, domainName, key string, w io.Writer) error {
	b.mu.RLock()
	f, err := b.file(domainName, key)
	var content []byte
	if err == nil {
		if !f.Materialised() {
			err = mogilefs.NoContent(key)
		}
		content = f.Content
	}
	b.mu.RUnlock()
	if err != nil {
		return err
	}
	// records are replaced, never mutated, so content is stable outside the lock
	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		return mogilefs.StorageError("write body", err)
	}
	return nil
}
