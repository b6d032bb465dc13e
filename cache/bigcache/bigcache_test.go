package bigcache

import (
	"context"
	"testing"
	"time"
)

func newProvider(t *testing.T, cfg Config) *Provider {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, Config{LifeWindow: time.Minute})

	if _, ok, err := p.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("empty get = %v, %v", ok, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("content")); !ok || err != nil {
		t.Fatalf("set = %v, %v", ok, err)
	}
	got, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(got) != "content" {
		t.Fatalf("get = %q, %v, %v", got, ok, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatal("hit after delete")
	}
}

func TestMaxContentSize(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, Config{LifeWindow: time.Minute, MaxContentSize: 4})
	ok, err := p.Set(ctx, "big", []byte("too large"))
	if err != nil || ok {
		t.Fatalf("set = %v, %v; want rejected", ok, err)
	}
	if _, hit, _ := p.Get(ctx, "big"); hit {
		t.Fatal("oversized entry cached")
	}
}
