package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalTryAcquireIsExclusivePerKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	lease, ok, err := l.TryAcquire(ctx, "wallet:a")
	if err != nil || !ok {
		t.Fatalf("Expected first acquire to succeed, ok=%v err=%v", ok, err)
	}

	if _, ok, _ := l.TryAcquire(ctx, "wallet:a"); ok {
		t.Fatal("Expected second acquire of the same key to fail")
	}

	other, ok, _ := l.TryAcquire(ctx, "wallet:b")
	if !ok {
		t.Fatal("Expected a different key to be independent")
	}
	_ = other.Release(ctx)

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	// Releasing twice is harmless.
	_ = lease.Release(ctx)

	again, ok, _ := l.TryAcquire(ctx, "wallet:a")
	if !ok {
		t.Fatal("Expected acquire after release to succeed")
	}
	_ = again.Release(ctx)
}

func TestLocalAcquireWaitsForRelease(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	first, err := l.Acquire(ctx, "collection")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		lease, err := l.Acquire(ctx, "collection")
		if err != nil {
			t.Errorf("Waiting acquire failed: %v", err)
			return
		}
		close(acquired)
		_ = lease.Release(ctx)
	}()

	select {
	case <-acquired:
		t.Fatal("Second acquire must wait for the first release")
	case <-time.After(20 * time.Millisecond):
	}

	_ = first.Release(ctx)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Second acquire did not proceed after release")
	}
}

func TestLocalAcquireHonoursContext(t *testing.T) {
	l := NewLocal()
	held, _ := l.Acquire(context.Background(), "k")
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.Acquire(ctx, "k")
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("Expected ErrNotAcquired, got %v", err)
	}
}

func TestLocalMutualExclusionUnderContention(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := l.Acquire(ctx, "k")
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = lease.Release(ctx)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("Expected at most one holder at a time, saw %d", maxInside)
	}
}

func TestNewRedisNormalisesPrefix(t *testing.T) {
	r := NewRedis(nil, " dca:lock: ", 0)
	if got := r.key("wallet:w1"); got != "dca:lock:wallet:w1" {
		t.Errorf("Unexpected key %q", got)
	}
	if r.ttl != 10*time.Minute {
		t.Errorf("Expected default ttl, got %v", r.ttl)
	}

	r = NewRedis(nil, "", time.Minute)
	if got := r.key("collection"); got != "dca:lock:collection" {
		t.Errorf("Unexpected default-prefixed key %q", got)
	}
}
