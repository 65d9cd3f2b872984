package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned by Acquire when the context ends before the lease
// could be taken.
var ErrNotAcquired = errors.New("lock not acquired")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker provides mutual exclusion scoped to a key (a wallet id, or the
// schedule collection).
type Locker interface {
	// TryAcquire takes the lock without waiting. ok is false when another
	// holder has it.
	TryAcquire(ctx context.Context, key string) (lease Lease, ok bool, err error)

	// Acquire waits until the lock is free or ctx is done.
	Acquire(ctx context.Context, key string) (Lease, error)
}

const defaultRetryInterval = 50 * time.Millisecond

// Local is an in-process Locker. It is sufficient when a single process hosts
// every trigger (server with in-process cron, or CLI runs serialized by the host).
type Local struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

var _ Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{held: make(map[string]chan struct{})}
}

type localLease struct {
	l    *Local
	key  string
	done chan struct{}
	once sync.Once
}

func (lease *localLease) Release(context.Context) error {
	lease.once.Do(func() {
		lease.l.mu.Lock()
		if lease.l.held[lease.key] == lease.done {
			delete(lease.l.held, lease.key)
		}
		lease.l.mu.Unlock()
		close(lease.done)
	})
	return nil
}

func (l *Local) TryAcquire(_ context.Context, key string) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	done := make(chan struct{})
	l.held[key] = done
	return &localLease{l: l, key: key, done: done}, true, nil
}

func (l *Local) Acquire(ctx context.Context, key string) (Lease, error) {
	for {
		l.mu.Lock()
		waitOn, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			return &localLease{l: l, key: key, done: done}, nil
		}
		l.mu.Unlock()

		select {
		case <-waitOn:
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
	}
}
