package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultVersionTTL must stay well above any entry TTL stamped with a version,
// so a counter never expires while an entry stamped from it is still live.
const DefaultVersionTTL = 24 * time.Hour

// Versions hands out per-key counters. Readers stamp a cache entry with the
// counter they saw before loading; writers bump it after their write, which
// turns every older stamp into a miss.
type Versions interface {
	Current(ctx context.Context, key string) (int64, error)
	Bump(ctx context.Context, key string) (int64, error)
}

// MemoryVersions keeps counters in process. Values come from one sequence,
// so an expired key can never hand out a version seen before.
type MemoryVersions struct {
	mu    sync.Mutex
	seq   int64
	store *MemoryCache
	ttl   time.Duration
}

func NewMemoryVersions() *MemoryVersions {
	return &MemoryVersions{store: NewMemoryCache(), ttl: DefaultVersionTTL}
}

func (v *MemoryVersions) Current(ctx context.Context, key string) (int64, error) {
	value, found := v.store.Get(key)
	if !found {
		return 0, nil
	}
	return value.(int64), nil
}

func (v *MemoryVersions) Bump(ctx context.Context, key string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	v.store.Set(key, v.seq, v.ttl)
	return v.seq, nil
}

func (v *MemoryVersions) Close() error {
	return v.store.Close()
}

// RedisVersions shares counters between instances with INCR.
type RedisVersions struct {
	client         *redis.Client
	prefix         string
	ttl            time.Duration
	circuitBreaker *CircuitBreaker
}

func NewRedisVersions(client *redis.Client, prefix string) *RedisVersions {
	return &RedisVersions{
		client:         client,
		prefix:         prefix + "version:",
		ttl:            DefaultVersionTTL,
		circuitBreaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
	}
}

func (v *RedisVersions) Current(ctx context.Context, key string) (int64, error) {
	var n int64
	err := v.circuitBreaker.Execute(func() error {
		var err error
		n, err = v.client.Get(ctx, v.prefix+key).Int64()
		if errors.Is(err, redis.Nil) {
			n, err = 0, nil
		}
		return err
	})
	return n, err
}

func (v *RedisVersions) Bump(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	err := v.circuitBreaker.Execute(func() error {
		_, err := v.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, v.prefix+key)
			pipe.Expire(ctx, v.prefix+key, v.ttl)
			return nil
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
