package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache interface {
	Set(key string, value interface{}, ttl time.Duration) error
	Get(key string, dest interface{}) error
	Delete(key string) error
	DeletePattern(pattern string) error
	Exists(key string) (bool, error)
	Stats() map[string]interface{}
	Health() error
	Close() error
}

// DefaultL1TTL bounds how long a process serves an entry from memory when an
// invalidation from another instance was lost.
const DefaultL1TTL = 30 * time.Second

const (
	invalidationChannel = "cache:invalidate"
	resubscribeDelay    = time.Second
	publishTimeout      = time.Second
)

// MultiLevelCache keeps JSON snapshots in process memory (L1) in front of an
// optional Redis cache (L2). With no L2 it is a plain memory cache. With L2,
// every write and delete is published so other instances drop their L1 copy.
type MultiLevelCache struct {
	l1             *MemoryCache
	l2             *RedisCache
	l1TTL          time.Duration
	metrics        *CacheMetrics
	circuitBreaker *CircuitBreaker

	origin  string
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	stopped chan struct{}
}

// invalidation is the message exchanged between instances. Origin lets an
// instance skip its own messages.
type invalidation struct {
	Origin  string `json:"origin"`
	Key     string `json:"key,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

func NewMultiLevelCache(redisCache *RedisCache) *MultiLevelCache {
	c := &MultiLevelCache{
		l1:             NewMemoryCache(),
		l2:             redisCache,
		l1TTL:          DefaultL1TTL,
		metrics:        NewCacheMetrics(),
		circuitBreaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
	}

	if redisCache != nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.origin = uuid.Must(uuid.NewV4()).String()
		c.pubsub = redisCache.client.Subscribe(ctx, redisCache.key(invalidationChannel))
		c.cancel = cancel
		c.stopped = make(chan struct{})
		go c.listen(ctx)
	}

	return c
}

// listen applies invalidations from other instances. Messages published while
// the subscription was down are lost, so L1 is flushed on every resubscribe.
func (c *MultiLevelCache) listen(ctx context.Context) {
	defer close(c.stopped)

	subscribed := false
	for {
		msg, err := c.pubsub.Receive(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeDelay):
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind != "subscribe" {
				continue
			}
			if subscribed {
				c.l1.Clear()
				log.Printf("🔄 Cache invalidation channel resubscribed, L1 flushed")
			}
			subscribed = true
		case *redis.Message:
			c.applyInvalidation(m.Payload)
		}
	}
}

func (c *MultiLevelCache) applyInvalidation(payload string) {
	var inv invalidation
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		log.Printf("⚠️  Ignoring malformed cache invalidation: %v", err)
		return
	}
	if inv.Origin == c.origin {
		return
	}
	if inv.Key != "" {
		c.l1.Delete(inv.Key)
	}
	if inv.Pattern != "" {
		c.l1.DeletePattern(inv.Pattern)
	}
}

func (c *MultiLevelCache) publish(inv invalidation) error {
	inv.Origin = c.origin
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return c.l2.client.Publish(ctx, c.l2.key(invalidationChannel), data).Err()
}

func (c *MultiLevelCache) l1Expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.l1TTL {
		return c.l1TTL
	}
	return ttl
}

func (c *MultiLevelCache) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("cache marshal error: %w", err)
	}

	c.l1.Set(key, json.RawMessage(data), c.l1Expiry(ttl))
	c.metrics.RecordSet()

	if c.l2 != nil {
		err := c.circuitBreaker.Execute(func() error {
			if err := c.l2.Set(key, json.RawMessage(data), ttl); err != nil {
				return err
			}
			return c.publish(invalidation{Key: key})
		})
		if err != nil {
			// L1 still holds the value; a degraded L2 is not a write failure
			c.metrics.RecordError()
		}
	}

	return nil
}

func (c *MultiLevelCache) Get(key string, dest interface{}) error {
	if value, found := c.l1.Get(key); found {
		c.metrics.RecordHit()
		return copyValue(value, dest)
	}

	if c.l2 != nil {
		err := c.circuitBreaker.Execute(func() error {
			return c.l2.Get(key, dest)
		})

		if err == nil {
			if data, merr := json.Marshal(dest); merr == nil {
				c.l1.Set(key, json.RawMessage(data), c.l1TTL)
			}
			c.metrics.RecordHit()
			return nil
		}

		if !errors.Is(err, ErrCacheMiss) {
			c.metrics.RecordError()
		}
	}

	c.metrics.RecordMiss()
	return ErrCacheMiss
}

func (c *MultiLevelCache) Delete(key string) error {
	c.l1.Delete(key)
	c.metrics.RecordDelete()

	if c.l2 != nil {
		err := c.circuitBreaker.Execute(func() error {
			if err := c.l2.Delete(key); err != nil {
				return err
			}
			return c.publish(invalidation{Key: key})
		})
		if err != nil {
			c.metrics.RecordError()
		}
		return err
	}

	return nil
}

func (c *MultiLevelCache) DeletePattern(pattern string) error {
	c.l1.DeletePattern(pattern)

	if c.l2 != nil {
		err := c.circuitBreaker.Execute(func() error {
			if err := c.l2.DeletePattern(pattern); err != nil {
				return err
			}
			return c.publish(invalidation{Pattern: pattern})
		})
		if err != nil {
			c.metrics.RecordError()
		}
		return err
	}

	return nil
}

func (c *MultiLevelCache) Exists(key string) (bool, error) {
	if _, found := c.l1.Get(key); found {
		return true, nil
	}

	if c.l2 != nil {
		return c.l2.Exists(key)
	}

	return false, nil
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":               c.l1.Stats(),
		"metrics":          c.metrics.GetStats(),
		"hit_rate_percent": c.metrics.HitRate(),
		"circuit_breaker":  c.circuitBreaker.GetStats(),
	}

	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}

	return stats
}

func (c *MultiLevelCache) Health() error {
	if c.l2 != nil {
		return c.l2.Health()
	}

	return nil
}

func (c *MultiLevelCache) Close() error {
	if c.pubsub != nil {
		c.cancel()
		c.pubsub.Close()
		<-c.stopped
	}

	c.l1.Close()

	if c.l2 != nil {
		return c.l2.Close()
	}

	return nil
}

func (c *MultiLevelCache) GetMetrics() *CacheMetrics {
	return c.metrics
}

func (c *MultiLevelCache) GetCircuitBreaker() *CircuitBreaker {
	return c.circuitBreaker
}

func copyValue(src, dest interface{}) error {
	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr {
		return fmt.Errorf("destination must be a pointer, got %T", dest)
	}

	if destValue.IsNil() {
		return fmt.Errorf("destination pointer is nil")
	}

	if !destValue.Elem().CanSet() {
		return fmt.Errorf("destination is not settable")
	}

	return copyValueViaJSON(src, dest)
}

func copyValueViaJSON(src, dest interface{}) error {
	jsonData, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal source value: %w", err)
	}

	err = json.Unmarshal(jsonData, dest)
	if err != nil {
		return fmt.Errorf("failed to unmarshal to destination: %w", err)
	}

	return nil
}
