// Package storage is the HTTP side of a storage node. It serves the URLs a
// tracker hands out from create_open and get_paths:
//
//	PUT  <base>/d/<domain>/k/<key>   store the body (201 Created)
//	GET  <base>/d/<domain>/k/<key>   read content
//	HEAD <base>/d/<domain>/k/<key>   size and last modification time
package storage

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/mogilefs"
	"github.com/unkn0wn-root/mogilefs/cache"
)

const (
	defaultMaxBodySize = 1 << 30
	cacheHeader        = "X-Cache"
)

type Config struct {
	// BasePath is the path prefix of the storage URLs, e.g. "/base".
	BasePath string
	// MaxBodySize caps PUT bodies. Default 1 GiB; negative disables the cap.
	MaxBodySize int64
	// Cache, when set, keeps recently read contents in memory.
	Cache  cache.Provider
	Logger mogilefs.Logger
}

type Node struct {
	backend mogilefs.StorageBackend
	prefix  string
	maxBody int64
	cache   cache.Provider
	log     mogilefs.Logger
}

var _ http.Handler = (*Node)(nil)

func New(backend mogilefs.StorageBackend, cfg Config) *Node {
	prefix := strings.Trim(cfg.BasePath, "/")
	if prefix != "" {
		prefix = "/" + prefix
	}
	return &Node{
		backend: backend,
		prefix:  prefix,
		maxBody: mogilefs.Coalesce(cfg.MaxBodySize, defaultMaxBodySize),
		cache:   cfg.Cache,
		log:     mogilefs.LoggerOrNop(cfg.Logger),
	}
}

func (n *Node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, n.prefix)
	if !ok {
		http.NotFound(w, r)
		return
	}
	domain, key, ok := mogilefs.ParseStoragePath(rest)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPut:
		n.put(w, r, domain, key)
	case http.MethodGet:
		n.get(w, r, domain, key)
	case http.MethodHead:
		n.head(w, r, domain, key)
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (n *Node) put(w http.ResponseWriter, r *http.Request, domain, key string) {
	ctx := r.Context()
	body := r.Body
	if n.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, n.maxBody)
	}

	// the previous version, if any, is dropped from the cache once replaced
	prev, prevErr := n.backend.FileMetadata(ctx, domain, key)

	if err := n.backend.StoreReaderContent(ctx, domain, key, body); err != nil {
		n.fail(w, "put", domain, key, err)
		return
	}
	if n.cache != nil && prevErr == nil {
		_ = n.cache.Del(ctx, cache.Key(domain, key, prev.Mtime))
	}
	n.log.Debug("storage: stored", mogilefs.Fields{"domain": domain, "key": key})
	w.WriteHeader(http.StatusCreated)
}

func (n *Node) head(w http.ResponseWriter, r *http.Request, domain, key string) {
	md, err := n.backend.FileMetadata(r.Context(), domain, key)
	if err != nil {
		n.fail(w, "head", domain, key, err)
		return
	}
	h := w.Header()
	h.Set("Content-Length", strconv.FormatInt(md.Size, 10))
	h.Set("Last-Modified", md.Mtime.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
}

func (n *Node) get(w http.ResponseWriter, r *http.Request, domain, key string) {
	ctx := r.Context()
	md, err := n.backend.FileMetadata(ctx, domain, key)
	if err != nil {
		n.fail(w, "get", domain, key, err)
		return
	}
	content, err := n.content(ctx, w, domain, key, md)
	if err != nil {
		n.fail(w, "get", domain, key, err)
		return
	}
	w.Header().Set("ETag", `"`+strconv.FormatUint(xxhash.Sum64(content), 16)+`"`)
	http.ServeContent(w, r, "", md.Mtime, bytes.NewReader(content))
}

// content reads through the cache when one is configured.
func (n *Node) content(ctx context.Context, w http.ResponseWriter, domain, key string, md mogilefs.StorageMetadata) ([]byte, error) {
	if n.cache == nil {
		var buf bytes.Buffer
		err := n.backend.GetContent(ctx, domain, key, &buf)
		return buf.Bytes(), err
	}

	ck := cache.Key(domain, key, md.Mtime)
	if b, ok, err := n.cache.Get(ctx, ck); err == nil && ok {
		w.Header().Set(cacheHeader, "HIT")
		return b, nil
	} else if err != nil {
		n.log.Warn("storage: cache get failed", mogilefs.Fields{"key": ck, "err": err})
	}

	buf := bytes.NewBuffer(make([]byte, 0, md.Size))
	if err := n.backend.GetContent(ctx, domain, key, buf); err != nil {
		return nil, err
	}
	if _, err := n.cache.Set(ctx, ck, buf.Bytes()); err != nil {
		n.log.Warn("storage: cache set failed", mogilefs.Fields{"key": ck, "err": err})
	}
	w.Header().Set(cacheHeader, "MISS")
	return buf.Bytes(), nil
}

func (n *Node) fail(w http.ResponseWriter, op, domain, key string, err error) {
	status := statusOf(err)
	f := mogilefs.Fields{"op": op, "domain": domain, "key": key, "status": status, "err": err}
	if status >= http.StatusInternalServerError {
		n.log.Error("storage: request failed", f)
	} else {
		n.log.Debug("storage: request rejected", f)
	}
	http.Error(w, err.Error(), status)
}

func statusOf(err error) int {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return http.StatusRequestEntityTooLarge
	}
	switch mogilefs.KindOf(err) {
	case mogilefs.KindUnknownKey, mogilefs.KindNoContent, mogilefs.KindUnregDomain:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
