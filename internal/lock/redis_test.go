package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedis(client, "test:lock", ttl)
	r.retryInterval = 5 * time.Millisecond
	return r, mr
}

func TestRedisTryAcquireIsExclusive(t *testing.T) {
	r, mr := newTestRedis(t, time.Minute)
	ctx := context.Background()

	lease, ok, err := r.TryAcquire(ctx, "wallet:w1")
	if err != nil || !ok {
		t.Fatalf("Expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	if !mr.Exists("test:lock:wallet:w1") {
		t.Fatal("Expected the lock key to be set")
	}
	if ttl := mr.TTL("test:lock:wallet:w1"); ttl != time.Minute {
		t.Errorf("Expected key ttl of one minute, got %v", ttl)
	}

	if _, ok, err := r.TryAcquire(ctx, "wallet:w1"); err != nil || ok {
		t.Fatalf("Expected second acquire to fail, ok=%v err=%v", ok, err)
	}

	other, ok, _ := r.TryAcquire(ctx, "wallet:w2")
	if !ok {
		t.Fatal("Expected a different key to be independent")
	}
	_ = other.Release(ctx)

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if mr.Exists("test:lock:wallet:w1") {
		t.Fatal("Expected release to delete the key")
	}

	again, ok, _ := r.TryAcquire(ctx, "wallet:w1")
	if !ok {
		t.Fatal("Expected acquire after release to succeed")
	}
	_ = again.Release(ctx)
}

func TestRedisReleaseOfExpiredLeaseKeepsNewHolder(t *testing.T) {
	r, mr := newTestRedis(t, time.Second)
	ctx := context.Background()

	stale, ok, _ := r.TryAcquire(ctx, "wallet:w1")
	if !ok {
		t.Fatal("Expected first acquire to succeed")
	}

	mr.FastForward(2 * time.Second)

	current, ok, _ := r.TryAcquire(ctx, "wallet:w1")
	if !ok {
		t.Fatal("Expected acquire after ttl expiry to succeed")
	}
	owner, _ := mr.Get("test:lock:wallet:w1")

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("Stale release should not error, got %v", err)
	}
	got, err := mr.Get("test:lock:wallet:w1")
	if err != nil || got != owner {
		t.Fatalf("Stale release must leave the new holder's key, got %q err=%v", got, err)
	}

	if _, ok, _ := r.TryAcquire(ctx, "wallet:w1"); ok {
		t.Fatal("Expected the new holder to still own the lock")
	}
	_ = current.Release(ctx)
	if mr.Exists("test:lock:wallet:w1") {
		t.Fatal("Expected the owner's release to delete the key")
	}
}

func TestRedisAcquireHonoursContext(t *testing.T) {
	r, _ := newTestRedis(t, time.Minute)
	held, err := r.Acquire(context.Background(), "collection")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = r.Acquire(ctx, "collection")
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("Expected ErrNotAcquired, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected the context error to be joined, got %v", err)
	}
}

func TestRedisAcquireWaitsForRelease(t *testing.T) {
	r, _ := newTestRedis(t, time.Minute)
	ctx := context.Background()

	first, _ := r.Acquire(ctx, "collection")

	acquired := make(chan struct{})
	go func() {
		lease, err := r.Acquire(ctx, "collection")
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
	case <-time.After(30 * time.Millisecond):
	}

	_ = first.Release(ctx)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Second acquire did not proceed after release")
	}
}

func TestRedisTryAcquireReportsConnectionErrors(t *testing.T) {
	r, mr := newTestRedis(t, time.Minute)
	mr.Close()

	if _, ok, err := r.TryAcquire(context.Background(), "wallet:w1"); err == nil || ok {
		t.Fatalf("Expected an error with redis down, ok=%v err=%v", ok, err)
	}
}
