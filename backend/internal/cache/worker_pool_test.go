package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type testCache struct {
	data sync.Map
}

func newTestCache() *testCache {
	return &testCache{}
}

func (tc *testCache) Set(key string, value interface{}, ttl time.Duration) error {
	tc.data.Store(key, value)
	return nil
}

func (tc *testCache) Get(key string, dest interface{}) error {
	value, exists := tc.data.Load(key)
	if !exists {
		return ErrCacheMiss
	}
	return copyValue(value, dest)
}

func (tc *testCache) GetValue(key string) (interface{}, bool) {
	return tc.data.Load(key)
}

func (tc *testCache) Delete(key string) error {
	tc.data.Delete(key)
	return nil
}

func (tc *testCache) DeletePattern(pattern string) error {
	tc.data.Range(func(key, _ interface{}) bool {
		if matchPattern(key.(string), pattern) {
			tc.data.Delete(key)
		}
		return true
	})
	return nil
}

func (tc *testCache) Exists(key string) (bool, error) {
	_, exists := tc.data.Load(key)
	return exists, nil
}

func (tc *testCache) Stats() map[string]interface{} {
	return map[string]interface{}{"type": "test"}
}

func (tc *testCache) Health() error {
	return nil
}

func (tc *testCache) Close() error {
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorkerPool_WarmsKey(t *testing.T) {
	cache := newTestCache()
	pool := NewWorkerPool(2, cache)
	pool.Start()
	defer pool.Stop()

	submitted := pool.SubmitJob(WarmupJob{
		Key: "test_key",
		TTL: time.Hour,
		Load: func(ctx context.Context) (interface{}, error) {
			return "test_value", nil
		},
	})
	if !submitted {
		t.Fatal("Expected job to be accepted")
	}

	waitFor(t, func() bool {
		_, ok := cache.GetValue("test_key")
		return ok
	})

	value, _ := cache.GetValue("test_key")
	if value != "test_value" {
		t.Errorf("Expected 'test_value', got %v", value)
	}
}

func TestWorkerPool_LoadErrorIsCounted(t *testing.T) {
	cache := newTestCache()
	pool := NewWorkerPool(1, cache)
	pool.Start()
	defer pool.Stop()

	pool.SubmitJob(WarmupJob{
		Key: "broken",
		Load: func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("load failed")
		},
	})

	waitFor(t, func() bool {
		return pool.GetStats()["jobs_processed"].(int64) == 1
	})

	if errs := pool.GetStats()["total_errors"].(int64); errs != 1 {
		t.Errorf("Expected 1 error, got %d", errs)
	}
	if _, ok := cache.GetValue("broken"); ok {
		t.Error("Expected failed job to leave the cache untouched")
	}
}

func TestWorkerPool_RejectsWhenStopped(t *testing.T) {
	pool := NewWorkerPool(1, newTestCache())

	if pool.SubmitJob(WarmupJob{Key: "k"}) {
		t.Error("Expected job to be rejected before Start")
	}

	pool.Start()
	if !pool.IsRunning() {
		t.Error("Expected pool to be running after Start")
	}
	pool.Stop()

	if pool.SubmitJob(WarmupJob{Key: "k"}) {
		t.Error("Expected job to be rejected after Stop")
	}
	if pool.IsRunning() {
		t.Error("Expected pool to be stopped")
	}
}

func TestWorkerPool_DefaultWorkers(t *testing.T) {
	pool := NewWorkerPool(0, newTestCache())

	if pool.workers != 3 {
		t.Errorf("Expected 3 default workers, got %d", pool.workers)
	}
}
