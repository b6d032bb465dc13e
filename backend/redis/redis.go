// Package redis is a tracker and storage backend kept in Redis, so several
// tracker processes can serve one namespace. Records are encoded with a
// codec.Record; content is stored next to them as a raw string.
package redis

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/mogilefs"
	"github.com/unkn0wn-root/mogilefs/codec"
	"github.com/unkn0wn-root/mogilefs/fidgen"
)

var (
	ErrNilClient  = errors.New("redis backend: nil client")
	ErrNilBaseURL = errors.New("redis backend: nil base url")
)

const (
	defaultNamespace = "mogilefs"
	maxRecordSize    = 64 << 10
	txRetries        = 16
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this backend exclusively owns the client

	// Namespace prefixes every key. Default "mogilefs".
	Namespace string
	// BaseURL is the storage node every destination points at.
	BaseURL *url.URL
	// Strict rejects unregistered domains with unreg_domain.
	Strict bool
	// Devid is reported for the single destination. Default 1.
	Devid uint64
	// Codec encodes file records. Default msgpack, capped at 64 KiB on decode.
	Codec codec.Record
	// Fids hands out file ids. Default: INCR on <ns>:fid.
	Fids fidgen.Generator
	// Now stamps materialised files. Default time.Now.
	Now func() time.Time
}

type Backend struct {
	rdb         goredis.UniversalClient
	closeClient bool

	keys   keyspace
	base   *url.URL
	strict bool
	devid  uint64
	codec  codec.Record
	fids   fidgen.Generator
	now    func() time.Time
}

var _ mogilefs.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.BaseURL == nil {
		return nil, ErrNilBaseURL
	}
	ns := mogilefs.Coalesce(cfg.Namespace, defaultNamespace)
	b := &Backend{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		keys:        keyspace{ns: ns},
		base:        cfg.BaseURL,
		strict:      cfg.Strict,
		devid:       mogilefs.Coalesce(cfg.Devid, 1),
		codec:       cfg.Codec,
		fids:        cfg.Fids,
		now:         cfg.Now,
	}
	if b.codec == nil {
		b.codec = codec.Limit[mogilefs.File]{Inner: codec.Msgpack[mogilefs.File]{}, MaxDecode: maxRecordSize}
	}
	if b.fids == nil {
		b.fids = fidgen.NewRedis(cfg.Client, ns)
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// Close releases the underlying redis client only when this backend owns it.
func (b *Backend) Close(context.Context) error {
	if b.closeClient {
		if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func redisErr(op string, err error) error {
	var me *mogilefs.Error
	if errors.As(err, &me) {
		return me
	}
	return mogilefs.WrapError(mogilefs.KindOther, "redis "+op, err)
}

// checkDomain enforces strict mode; lenient mode never fails.
func (b *Backend) checkDomain(ctx context.Context, domain string) error {
	if !b.strict {
		return nil
	}
	ok, err := b.rdb.SIsMember(ctx, b.keys.domains(), domain).Result()
	if err != nil {
		return redisErr("sismember", err)
	}
	if !ok {
		return mogilefs.UnregDomain(domain)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// load reads and decodes a record. A missing record is unknown_key.
func (b *Backend) load(ctx context.Context, r getter, domain, key string) (mogilefs.File, error) {
	raw, err := r.Get(ctx, b.keys.record(domain, key)).Bytes()
	if err == goredis.Nil {
		return mogilefs.File{}, mogilefs.UnknownKey(key)
	}
	if err != nil {
		return mogilefs.File{}, redisErr("get", err)
	}
	f, err := b.codec.Decode(raw)
	if err != nil {
		return mogilefs.File{}, mogilefs.WrapError(mogilefs.KindOther, "corrupt record "+key, err)
	}
	if f.Materialised() {
		f.Mtime = f.Mtime.UTC()
	}
	return f, nil
}

// watch runs fn in an optimistic transaction over keys, retrying when a
// concurrent writer touched them.
func (b *Backend) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	for i := 0; i < txRetries; i++ {
		err := b.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return mogilefs.NewError(mogilefs.KindOther, "redis: too much contention")
}

func (b *Backend) CreateDomain(ctx context.Context, req *mogilefs.CreateDomain) (*mogilefs.CreateDomainResponse, error) {
	n, err := b.rdb.SAdd(ctx, b.keys.domains(), req.Domain).Result()
	if err != nil {
		return nil, redisErr("sadd", err)
	}
	if n == 0 {
		return nil, mogilefs.DomainExists(req.Domain)
	}
	return &mogilefs.CreateDomainResponse{Domain: req.Domain}, nil
}

// CreateClass is accepted without effect.
func (b *Backend) CreateClass(ctx context.Context, req *mogilefs.CreateClass) (*mogilefs.CreateClassResponse, error) {
	if err := b.checkDomain(ctx, req.Domain); err != nil {
		return nil, err
	}
	return &mogilefs.CreateClassResponse{Domain: req.Domain, Class: req.Class, MinDevCount: req.MinDevCount}, nil
}

// CreateOpen reserves key, replacing any previous record and content.
func (b *Backend) CreateOpen(ctx context.Context, req *mogilefs.CreateOpen) (*mogilefs.CreateOpenResponse, error) {
	if err := b.checkDomain(ctx, req.Domain); err != nil {
		return nil, err
	}
	if !b.strict {
		if err := b.rdb.SAdd(ctx, b.keys.domains(), req.Domain).Err(); err != nil {
			return nil, redisErr("sadd", err)
		}
	}
	fid, err := b.fids.Next(ctx)
	if err != nil {
		return nil, mogilefs.WrapError(mogilefs.KindOther, "fid", err)
	}
	raw, err := b.codec.Encode(mogilefs.File{Fid: fid, Key: req.Key, Class: req.Class})
	if err != nil {
		return nil, mogilefs.WrapError(mogilefs.KindOther, "encode record", err)
	}

	_, err = b.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZAdd(ctx, b.keys.index(req.Domain), goredis.Z{Member: req.Key})
		p.Set(ctx, b.keys.record(req.Domain, req.Key), raw, 0)
		p.Del(ctx, b.keys.content(req.Domain, req.Key))
		return nil
	})
	if err != nil {
		return nil, redisErr("create_open", err)
	}
	return &mogilefs.CreateOpenResponse{
		Fid: fid,
		Paths: []mogilefs.Destination{{
			Devid: b.devid,
			URL:   b.URLForKey(req.Domain, req.Key).String(),
		}},
	}, nil
}

func (b *Backend) CreateClose(ctx context.Context, req *mogilefs.CreateClose) error {
	return b.checkDomain(ctx, req.Domain)
}

func (b *Backend) GetPaths(ctx context.Context, req *mogilefs.GetPaths) (*mogilefs.GetPathsResponse, error) {
	if err := b.checkDomain(ctx, req.Domain); err != nil {
		return nil, err
	}
	n, err := b.rdb.Exists(ctx, b.keys.record(req.Domain, req.Key)).Result()
	if err != nil {
		return nil, redisErr("exists", err)
	}
	if n == 0 {
		return nil, mogilefs.UnknownKey(req.Key)
	}
	return &mogilefs.GetPathsResponse{Paths: []string{b.URLForKey(req.Domain, req.Key).String()}}, nil
}

func (b *Backend) FileInfo(ctx context.Context, req *mogilefs.FileInfo) (*mogilefs.FileInfoResponse, error) {
	if err := b.checkDomain(ctx, req.Domain); err != nil {
		return nil, err
	}
	f, err := b.load(ctx, b.rdb, req.Domain, req.Key)
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

// Rename moves the record and its content in one transaction.
func (b *Backend) Rename(ctx context.Context, req *mogilefs.Rename) error {
	if err := b.checkDomain(ctx, req.Domain); err != nil {
		return err
	}
	d := req.Domain
	from, to := b.keys.record(d, req.FromKey), b.keys.record(d, req.ToKey)
	fromContent, toContent := b.keys.content(d, req.FromKey), b.keys.content(d, req.ToKey)

	return b.watch(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, to).Result()
		if err != nil {
			return redisErr("exists", err)
		}
		if n > 0 {
			return mogilefs.KeyExists(req.ToKey)
		}
		f, err := b.load(ctx, tx, d, req.FromKey)
		if err != nil {
			return err
		}
		hasContent, err := tx.Exists(ctx, fromContent).Result()
		if err != nil {
			return redisErr("exists", err)
		}
		f.Key = req.ToKey
		raw, err := b.codec.Encode(f)
		if err != nil {
			return mogilefs.WrapError(mogilefs.KindOther, "encode record", err)
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, to, raw, 0)
			p.Del(ctx, from)
			if hasContent > 0 {
				p.Rename(ctx, fromContent, toContent)
			}
			p.ZRem(ctx, b.keys.index(d), req.FromKey)
			p.ZAdd(ctx, b.keys.index(d), goredis.Z{Member: req.ToKey})
			return nil
		})
		return err
	}, from, to, fromContent)
}

// UpdateClass rewrites the class of an existing record; missing keys are
// silently accepted.
func (b *Backend) UpdateClass(ctx context.Context, req *mogilefs.UpdateClass) error {
	if err := b.checkDomain(ctx, req.Domain); err != nil {
		return err
	}
	rk := b.keys.record(req.Domain, req.Key)
	return b.watch(ctx, func(tx *goredis.Tx) error {
		f, err := b.load(ctx, tx, req.Domain, req.Key)
		if mogilefs.KindOf(err) == mogilefs.KindUnknownKey {
			return nil
		}
		if err != nil {
			return err
		}
		f.Class = req.Class
		raw, err := b.codec.Encode(f)
		if err != nil {
			return mogilefs.WrapError(mogilefs.KindOther, "encode record", err)
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, rk, raw, 0)
			return nil
		})
		return err
	}, rk)
}

func (b *Backend) Delete(ctx context.Context, req *mogilefs.Delete) error {
	if err := b.checkDomain(ctx, req.Domain); err != nil {
		return err
	}
	var del *goredis.IntCmd
	_, err := b.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		del = p.Del(ctx, b.keys.record(req.Domain, req.Key))
		p.Del(ctx, b.keys.content(req.Domain, req.Key))
		p.ZRem(ctx, b.keys.index(req.Domain), req.Key)
		return nil
	})
	if err != nil {
		return redisErr("delete", err)
	}
	if del.Val() == 0 {
		return mogilefs.UnknownKey(req.Key)
	}
	return nil
}

// ListKeys reads one lex range of the domain index. The range starts at
// max(prefix, after) so a single page of limit entries always suffices.
func (b *Backend) ListKeys(ctx context.Context, req *mogilefs.ListKeys) (*mogilefs.ListKeysResponse, error) {
	if err := b.checkDomain(ctx, req.Domain); err != nil {
		return nil, err
	}
	limit := req.PageLimit()
	lo := "-"
	switch {
	case req.After != "" && req.After >= req.Prefix:
		lo = "(" + req.After
	case req.Prefix != "":
		lo = "[" + req.Prefix
	}
	keys, err := b.rdb.ZRangeByLex(ctx, b.keys.index(req.Domain), &goredis.ZRangeBy{
		Min:   lo,
		Max:   "+",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, redisErr("zrangebylex", err)
	}

	resp := &mogilefs.ListKeysResponse{Keys: make([]string, 0, len(keys))}
	for _, k := range keys {
		if !strings.HasPrefix(k, req.Prefix) {
			break
		}
		resp.Keys = append(resp.Keys, k)
	}
	return resp, nil
}

func (b *Backend) URLForKey(domain, key string) *url.URL {
	return mogilefs.StorageURL(b.base, domain, key)
}

func (b *Backend) FileMetadata(ctx context.Context, domain, key string) (mogilefs.StorageMetadata, error) {
	if err := b.checkDomain(ctx, domain); err != nil {
		return mogilefs.StorageMetadata{}, err
	}
	f, err := b.load(ctx, b.rdb, domain, key)
	if err != nil {
		return mogilefs.StorageMetadata{}, err
	}
	return f.Metadata()
}

func (b *Backend) StoreReaderContent(ctx context.Context, domain, key string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return mogilefs.StorageError("read body", err)
	}
	return b.StoreBytesContent(ctx, domain, key, content)
}

// StoreBytesContent materialises a reserved file. Keys that were never
// opened are rejected with unknown_key.
func (b *Backend) StoreBytesContent(ctx context.Context, domain, key string, content []byte) error {
	if err := b.checkDomain(ctx, domain); err != nil {
		return err
	}
	rk := b.keys.record(domain, key)
	return b.watch(ctx, func(tx *goredis.Tx) error {
		f, err := b.load(ctx, tx, domain, key)
		if err != nil {
			return err
		}
		f.Size = int64(len(content))
		f.Mtime = b.now().UTC()
		raw, err := b.codec.Encode(f)
		if err != nil {
			return mogilefs.WrapError(mogilefs.KindOther, "encode record", err)
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, rk, raw, 0)
			p.Set(ctx, b.keys.content(domain, key), content, 0)
			return nil
		})
		return err
	}, rk)
}

func (b *Backend) GetContent(ctx context.Context, domain, key string, w io.Writer) error {
	if err := b.checkDomain(ctx, domain); err != nil {
		return err
	}
	f, err := b.load(ctx, b.rdb, domain, key)
	if err != nil {
		return err
	}
	if !f.Materialised() {
		return mogilefs.NoContent(key)
	}
	content, err := b.rdb.Get(ctx, b.keys.content(domain, key)).Bytes()
	if err == goredis.Nil {
		return mogilefs.NoContent(key)
	}
	if err != nil {
		return redisErr("get", err)
	}
	if _, err := w.Write(content); err != nil {
		return mogilefs.StorageError("write body", err)
	}
	return nil
}
