package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deletes the key only if it still holds this lease's token, so a lease that
// outlived its TTL cannot release somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process pointing at the same Redis. Leases
// expire after ttl so a crashed holder cannot wedge a schedule forever.
type Redis struct {
	client        redis.UniversalClient
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
}

var _ Locker = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "dca:lock"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Redis{
		client:        client,
		prefix:        trimmedPrefix,
		ttl:           ttl,
		retryInterval: defaultRetryInterval,
	}
}

// NewRedisFromURL parses a redis:// URL and builds the locker.
func NewRedisFromURL(ctx context.Context, rawURL, prefix string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to reach redis: %w", err)
	}
	return NewRedis(client, prefix, ttl), nil
}

func (r *Redis) key(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

type redisLease struct {
	r     *Redis
	key   string
	token string
}

// Release deletes the lock if this lease still owns it. A lease that outlived
// the ttl may have been taken over; exclusivity of the swap itself then rests
// on the schedule's write-ahead marker.
func (lease *redisLease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, lease.r.client, []string{lease.key}, lease.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lease.key, err)
	}
	if deleted == 0 {
		zap.L().Warn("Lock expired before release", zap.String("key", lease.key))
	}
	return nil
}

func (r *Redis) TryAcquire(ctx context.Context, key string) (Lease, bool, error) {
	fullKey := r.key(key)
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{r: r, key: fullKey, token: token}, true, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	ticker := time.NewTicker(r.retryInterval)
	defer ticker.Stop()

	for {
		lease, ok, err := r.TryAcquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return lease, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
	}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
