package ristretto

import (
	"context"
	"testing"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	p, err := New(DefaultConfig(1 << 20))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatal("hit on empty cache")
	}
	if ok, err := p.Set(ctx, "k", []byte("content")); err != nil || !ok {
		t.Fatalf("set = %v, %v", ok, err)
	}
	p.Wait()

	got, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(got) != "content" {
		t.Fatalf("get = %q, %v, %v", got, ok, err)
	}

	if err := p.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatal("hit after delete")
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for zero config")
	}
}
