package fidgen

import (
	"context"
	"sync"
	"testing"
)

func TestLocalStartsAtOne(t *testing.T) {
	ctx := context.Background()
	g := NewLocal()
	t.Cleanup(func() { _ = g.Close(ctx) })

	if cur, _ := g.Current(ctx); cur != 0 {
		t.Fatalf("current before first Next = %d, want 0", cur)
	}
	for want := uint64(1); want <= 3; want++ {
		got, err := g.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("Next = %d, want %d", got, want)
		}
	}
}

func TestLocalFrom(t *testing.T) {
	ctx := context.Background()
	g := NewLocalFrom(41)
	if got, _ := g.Next(ctx); got != 42 {
		t.Fatalf("Next = %d, want 42", got)
	}
}

func TestLocalConcurrentIdsAreUnique(t *testing.T) {
	ctx := context.Background()
	g := NewLocal()

	const workers, per = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[uint64]struct{}, workers*per)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id, _ := g.Next(ctx)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*per {
		t.Fatalf("got %d unique ids, want %d", len(seen), workers*per)
	}
	if cur, _ := g.Current(ctx); cur != workers*per {
		t.Fatalf("current = %d, want %d", cur, workers*per)
	}
}
