package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrLockHeld = errors.New("lock already held")

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type RedisOptions struct {
	// Prefix namespaces keys in Redis.
	Prefix string
	// TTL bounds how long a crashed holder can keep the lock.
	TTL           time.Duration
	RetryInterval time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:        "instafund:lock:",
		TTL:           10 * time.Second,
		RetryInterval: 25 * time.Millisecond,
	}
}

// RedisLocker is a Locker shared by every API instance pointing at the same
// Redis. Waiting is bounded by ctx.
type RedisLocker struct {
	client *redis.Client
	opts   RedisOptions
}

func NewRedisLocker(client *redis.Client, opts RedisOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = DefaultRedisOptions().TTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRedisOptions().RetryInterval
	}
	return &RedisLocker{client: client, opts: opts}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	if l.client == nil {
		return nil, errors.New("redis client is nil")
	}
	k := l.opts.Prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, k, token, l.opts.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.Eval(ctx, releaseScript, []string{k}, token).Err(); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("release lock")
		}
	}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()
	for {
		unlock, err := l.TryLock(ctx, key)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
