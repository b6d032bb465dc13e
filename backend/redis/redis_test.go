package redis

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/mogilefs"
	"github.com/unkn0wn-root/mogilefs/codec"
)

var ctx = context.Background()

var stamp = time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)

func newBackend(t *testing.T, mutate func(*Config)) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	base, _ := url.Parse("http://host/base")
	cfg := Config{
		Client:      rdb,
		CloseClient: true,
		Namespace:   "t",
		BaseURL:     base,
		Now:         func() time.Time { return stamp },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = b.Close(ctx) })
	return b, mr
}

func put(t *testing.T, b *Backend, domain, key, content string) uint64 {
	t.Helper()
	resp, err := b.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: domain, Key: key})
	if err != nil {
		t.Fatalf("create_open %s/%s: %v", domain, key, err)
	}
	if err := b.StoreBytesContent(ctx, domain, key, []byte(content)); err != nil {
		t.Fatalf("store %s/%s: %v", domain, key, err)
	}
	return resp.Fid
}

func wantKind(t *testing.T, err error, kind mogilefs.Kind) {
	t.Helper()
	if got := mogilefs.KindOf(err); got != kind {
		t.Fatalf("kind = %q (%v), want %q", got, err, kind)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{}); err != ErrNilClient {
		t.Fatalf("err = %v, want ErrNilClient", err)
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	if _, err := New(Config{Client: rdb}); err != ErrNilBaseURL {
		t.Fatalf("err = %v, want ErrNilBaseURL", err)
	}
}

func TestCreateDomain(t *testing.T) {
	b, mr := newBackend(t, nil)
	if _, err := b.CreateDomain(ctx, &mogilefs.CreateDomain{Domain: "td"}); err != nil {
		t.Fatal(err)
	}
	_, err := b.CreateDomain(ctx, &mogilefs.CreateDomain{Domain: "td"})
	wantKind(t, err, mogilefs.KindDomainExists)

	members, err := mr.Members("t:domains")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0] != "td" {
		t.Fatalf("domains = %v", members)
	}
}

func TestCreateOpenLayout(t *testing.T) {
	b, mr := newBackend(t, nil)
	resp, err := b.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: "my:dom", Key: "a/b"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Fid != 1 || len(resp.Paths) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if got := resp.Paths[0].URL; got != "http://host/base/d/my:dom/k/a/b" {
		t.Fatalf("url = %s", got)
	}
	if !mr.Exists("t:{my%3Adom}:f:a/b") {
		t.Fatalf("record key missing; keys = %v", mr.Keys())
	}
	if ok, _ := mr.SIsMember("t:domains", "my:dom"); !ok {
		t.Fatal("lenient create_open did not register domain")
	}

	_, err = b.FileInfo(ctx, &mogilefs.FileInfo{Domain: "my:dom", Key: "a/b"})
	wantKind(t, err, mogilefs.KindNoContent)
}

func TestStoreAndRead(t *testing.T) {
	b, _ := newBackend(t, nil)
	wantKind(t, b.StoreBytesContent(ctx, "td", "never", []byte("x")), mogilefs.KindUnknownKey)

	fid := put(t, b, "td", "f", "hello world")

	md, err := b.FileMetadata(ctx, "td", "f")
	if err != nil {
		t.Fatal(err)
	}
	if md.Size != 11 || !md.Mtime.Equal(stamp) {
		t.Fatalf("metadata = %+v", md)
	}
	var buf bytes.Buffer
	if err := b.GetContent(ctx, "td", "f", &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello world" {
		t.Fatalf("content = %q", buf.String())
	}
	info, err := b.FileInfo(ctx, &mogilefs.FileInfo{Domain: "td", Key: "f"})
	if err != nil {
		t.Fatal(err)
	}
	want := mogilefs.FileInfoResponse{Domain: "td", Key: "f", Length: 11, Fid: fid, DevCount: 1, Class: mogilefs.DefaultClass}
	if *info != want {
		t.Fatalf("info = %+v, want %+v", *info, want)
	}
}

func TestStoreReader(t *testing.T) {
	b, _ := newBackend(t, nil)
	if _, err := b.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: "td", Key: "r"}); err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte{0, 1, 2, 255}, 4096)
	if err := b.StoreReaderContent(ctx, "td", "r", bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := b.GetContent(ctx, "td", "r", &buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Fatal("binary content mismatch")
	}
}

func TestRename(t *testing.T) {
	b, _ := newBackend(t, nil)
	fid := put(t, b, "td", "a", "A")
	put(t, b, "td", "b", "B")

	wantKind(t, b.Rename(ctx, &mogilefs.Rename{Domain: "td", FromKey: "a", ToKey: "b"}), mogilefs.KindKeyExists)
	wantKind(t, b.Rename(ctx, &mogilefs.Rename{Domain: "td", FromKey: "zz", ToKey: "c"}), mogilefs.KindUnknownKey)

	if err := b.Rename(ctx, &mogilefs.Rename{Domain: "td", FromKey: "a", ToKey: "c"}); err != nil {
		t.Fatal(err)
	}
	_, err := b.GetPaths(ctx, &mogilefs.GetPaths{Domain: "td", Key: "a"})
	wantKind(t, err, mogilefs.KindUnknownKey)

	info, err := b.FileInfo(ctx, &mogilefs.FileInfo{Domain: "td", Key: "c"})
	if err != nil {
		t.Fatal(err)
	}
	if info.Fid != fid || info.Key != "c" || info.Length != 1 {
		t.Fatalf("info = %+v", info)
	}
	var buf bytes.Buffer
	if err := b.GetContent(ctx, "td", "c", &buf); err != nil || buf.String() != "A" {
		t.Fatalf("content = %q, %v", buf.String(), err)
	}

	keys, _ := b.ListKeys(ctx, &mogilefs.ListKeys{Domain: "td"})
	if strings.Join(keys.Keys, ",") != "b,c" {
		t.Fatalf("keys = %v", keys.Keys)
	}
}

func TestRenameReservedFile(t *testing.T) {
	b, _ := newBackend(t, nil)
	if _, err := b.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: "td", Key: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Rename(ctx, &mogilefs.Rename{Domain: "td", FromKey: "a", ToKey: "b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.GetPaths(ctx, &mogilefs.GetPaths{Domain: "td", Key: "b"}); err != nil {
		t.Fatal(err)
	}
}

func TestDelete(t *testing.T) {
	b, mr := newBackend(t, nil)
	put(t, b, "td", "a", "A")
	if err := b.Delete(ctx, &mogilefs.Delete{Domain: "td", Key: "a"}); err != nil {
		t.Fatal(err)
	}
	wantKind(t, b.Delete(ctx, &mogilefs.Delete{Domain: "td", Key: "a"}), mogilefs.KindUnknownKey)
	_, err := b.GetPaths(ctx, &mogilefs.GetPaths{Domain: "td", Key: "a"})
	wantKind(t, err, mogilefs.KindUnknownKey)
	if mr.Exists("t:{td}:c:a") {
		t.Fatal("content left behind")
	}
}

func TestUpdateClass(t *testing.T) {
	b, _ := newBackend(t, nil)
	put(t, b, "td", "a", "A")
	if err := b.UpdateClass(ctx, &mogilefs.UpdateClass{Domain: "td", Key: "a", Class: "cold"}); err != nil {
		t.Fatal(err)
	}
	info, err := b.FileInfo(ctx, &mogilefs.FileInfo{Domain: "td", Key: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if info.Class != "cold" {
		t.Fatalf("class = %q", info.Class)
	}
	if err := b.UpdateClass(ctx, &mogilefs.UpdateClass{Domain: "td", Key: "missing", Class: "x"}); err != nil {
		t.Fatalf("missing key: %v", err)
	}
}

func TestListKeysPages(t *testing.T) {
	b, _ := newBackend(t, nil)
	var all []string
	for i := 1; i <= 100; i++ {
		k := fmt.Sprintf("p/key/%d", i)
		all = append(all, k)
		if _, err := b.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: "td2", Key: k}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := b.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: "td2", Key: "q"}); err != nil {
		t.Fatal(err)
	}
	sort.Strings(all)

	var got []string
	after := ""
	for {
		page, err := b.ListKeys(ctx, &mogilefs.ListKeys{Domain: "td2", Prefix: "p/", After: after, Limit: 10})
		if err != nil {
			t.Fatal(err)
		}
		if len(page.Keys) == 0 {
			break
		}
		got = append(got, page.Keys...)
		after = page.NextAfter()
	}
	if strings.Join(got, ",") != strings.Join(all, ",") {
		t.Fatalf("got %v", got)
	}
}

func TestListKeysPrefixAndAfter(t *testing.T) {
	b, _ := newBackend(t, nil)
	for _, k := range []string{"a", "b/1", "b/2", "b/3", "c"} {
		if _, err := b.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: "td", Key: k}); err != nil {
			t.Fatal(err)
		}
	}
	cases := []struct {
		prefix, after string
		want          string
	}{
		{"", "", "a,b/1,b/2,b/3,c"},
		{"b/", "", "b/1,b/2,b/3"},
		{"b/", "a", "b/1,b/2,b/3"},
		{"b/", "b/1", "b/2,b/3"},
		{"b/", "c", ""},
		{"", "b/3", "c"},
	}
	for _, tc := range cases {
		resp, err := b.ListKeys(ctx, &mogilefs.ListKeys{Domain: "td", Prefix: tc.prefix, After: tc.after})
		if err != nil {
			t.Fatal(err)
		}
		if got := strings.Join(resp.Keys, ","); got != tc.want {
			t.Fatalf("prefix=%q after=%q: got %q, want %q", tc.prefix, tc.after, got, tc.want)
		}
	}
}

func TestStrict(t *testing.T) {
	b, _ := newBackend(t, func(c *Config) { c.Strict = true })

	_, err := b.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: "td", Key: "a"})
	wantKind(t, err, mogilefs.KindUnregDomain)
	_, err = b.GetPaths(ctx, &mogilefs.GetPaths{Domain: "td", Key: "a"})
	wantKind(t, err, mogilefs.KindUnregDomain)

	if _, err := b.CreateDomain(ctx, &mogilefs.CreateDomain{Domain: "td"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: "td", Key: "a"}); err != nil {
		t.Fatal(err)
	}
}

func TestCBORRecords(t *testing.T) {
	c, err := codec.NewCBOR[mogilefs.File](true)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := newBackend(t, func(cfg *Config) { cfg.Codec = c })
	fid := put(t, b, "td", "x", "cbor")
	info, err := b.FileInfo(ctx, &mogilefs.FileInfo{Domain: "td", Key: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if info.Fid != fid || info.Length != 4 {
		t.Fatalf("info = %+v", info)
	}
}

func TestCorruptRecord(t *testing.T) {
	b, mr := newBackend(t, nil)
	if err := mr.Set("t:{td}:f:bad", "\xc1\xc1"); err != nil {
		t.Fatal(err)
	}
	_, err := b.FileInfo(ctx, &mogilefs.FileInfo{Domain: "td", Key: "bad"})
	wantKind(t, err, mogilefs.KindOther)
}

func TestFidsSharedAcrossBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	base, _ := url.Parse("http://host")
	open := func() *Backend {
		rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		b, err := New(Config{Client: rdb, CloseClient: true, BaseURL: base})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = b.Close(ctx) })
		return b
	}
	a, c := open(), open()
	r1, err := a.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: "d", Key: "1"})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := c.CreateOpen(ctx, &mogilefs.CreateOpen{Domain: "d", Key: "2"})
	if err != nil {
		t.Fatal(err)
	}
	if r2.Fid <= r1.Fid {
		t.Fatalf("fids %d then %d", r1.Fid, r2.Fid)
	}
	if _, err := c.GetPaths(ctx, &mogilefs.GetPaths{Domain: "d", Key: "1"}); err != nil {
		t.Fatalf("second tracker cannot see first tracker's key: %v", err)
	}
}
