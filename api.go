package mogilefs

import (
	"context"
	"io"
	"net/url"
	"time"
)

// TrackerBackend is the capability surface the Tracker dispatches to.
// Implementations must be safe for concurrent use; every method is one
// atomic operation against the backend state.
type TrackerBackend interface {
	CreateDomain(ctx context.Context, req *CreateDomain) (*CreateDomainResponse, error)
	CreateClass(ctx context.Context, req *CreateClass) (*CreateClassResponse, error)
	CreateOpen(ctx context.Context, req *CreateOpen) (*CreateOpenResponse, error)
	CreateClose(ctx context.Context, req *CreateClose) error
	GetPaths(ctx context.Context, req *GetPaths) (*GetPathsResponse, error)
	FileInfo(ctx context.Context, req *FileInfo) (*FileInfoResponse, error)
	Rename(ctx context.Context, req *Rename) error
	UpdateClass(ctx context.Context, req *UpdateClass) error
	Delete(ctx context.Context, req *Delete) error
	ListKeys(ctx context.Context, req *ListKeys) (*ListKeysResponse, error)
}

// StorageBackend is the capability surface a storage node serves bytes
// from. Content can only be stored for keys a create_open reserved.
type StorageBackend interface {
	URLForKey(domain, key string) *url.URL
	FileMetadata(ctx context.Context, domain, key string) (StorageMetadata, error)
	StoreReaderContent(ctx context.Context, domain, key string, r io.Reader) error
	StoreBytesContent(ctx context.Context, domain, key string, content []byte) error
	GetContent(ctx context.Context, domain, key string, w io.Writer) error
}

// Backend provides both capabilities.
type Backend interface {
	TrackerBackend
	StorageBackend
}

// StorageMetadata is what a storage node reports for HEAD.
type StorageMetadata struct {
	Size  int64
	Mtime time.Time
}

// File is a stored object. A File is reserved after create_open (no
// content, zero Mtime) and materialised once a storage write lands.
type File struct {
	Fid     uint64    `msgpack:"fid" cbor:"fid" json:"fid"`
	Key     string    `msgpack:"key" cbor:"key" json:"key"`
	Class   string    `msgpack:"class,omitempty" cbor:"class,omitempty" json:"class,omitempty"`
	Size    int64     `msgpack:"size" cbor:"size" json:"size"`
	Mtime   time.Time `msgpack:"mtime" cbor:"mtime" json:"mtime"`
	Content []byte    `msgpack:"-" cbor:"-" json:"-"`
}

// Materialised reports whether content has been stored.
func (f *File) Materialised() bool { return !f.Mtime.IsZero() }

// Metadata returns size and mtime, or a no_content error for a reserved file.
func (f *File) Metadata() (StorageMetadata, error) {
	if !f.Materialised() {
		return StorageMetadata{}, NoContent(f.Key)
	}
	return StorageMetadata{Size: f.Size, Mtime: f.Mtime}, nil
}

// DefaultClass is reported by file_info when no class was given.
const DefaultClass = "default"

// ListLimit is both the default and the maximum list_keys page size.
const ListLimit = 1000
