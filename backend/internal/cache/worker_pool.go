package cache

import (
	"context"
	"log"
	"sync"
	"time"
)

// WarmupJob loads a value and stores it under Key. Load runs on a pool
// worker, never on the request goroutine.
type WarmupJob struct {
	Key  string
	TTL  time.Duration
	Load func(ctx context.Context) (interface{}, error)
}

type JobResult struct {
	Job      WarmupJob
	Error    error
	Duration time.Duration
}

// WorkerPool fills the cache in the background from a bounded queue. Jobs
// submitted while the queue is full are dropped.
type WorkerPool struct {
	workers  int
	jobCh    chan WarmupJob
	resultCh chan JobResult
	cache    Cache
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	mu       sync.RWMutex

	jobsProcessed int64
	totalDuration time.Duration
	errors        int64
}

func NewWorkerPool(workers int, cache Cache) *WorkerPool {
	if workers <= 0 {
		workers = 3
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:  workers,
		jobCh:    make(chan WarmupJob, workers*16),
		resultCh: make(chan JobResult, workers),
		cache:    cache,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return
	}

	wp.running = true

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	go wp.resultCollector()

	log.Printf("🏃 Cache warmer started with %d workers", wp.workers)
}

func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = false
	close(wp.jobCh)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()

	log.Printf("🛑 Cache warmer stopped")
}

func (wp *WorkerPool) SubmitJob(job WarmupJob) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return false
	}

	select {
	case wp.jobCh <- job:
		return true
	default:
		log.Printf("⚠️ Cache warmer queue full, dropping job: %s", job.Key)
		return false
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobCh {
		result := wp.processJob(job)

		select {
		case wp.resultCh <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job WarmupJob) JobResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(wp.ctx, 10*time.Second)
	defer cancel()

	value, err := job.Load(ctx)
	if err == nil {
		err = wp.cache.Set(job.Key, value, job.TTL)
	}
	duration := time.Since(start)

	if err != nil {
		log.Printf("❌ Failed to warm cache key %s: %v", job.Key, err)
	}

	return JobResult{
		Job:      job,
		Error:    err,
		Duration: duration,
	}
}

func (wp *WorkerPool) resultCollector() {
	for {
		select {
		case result := <-wp.resultCh:
			wp.mu.Lock()
			wp.jobsProcessed++
			wp.totalDuration += result.Duration
			if result.Error != nil {
				wp.errors++
			}
			wp.mu.Unlock()

		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) GetStats() map[string]interface{} {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	avgDuration := time.Duration(0)
	if wp.jobsProcessed > 0 {
		avgDuration = wp.totalDuration / time.Duration(wp.jobsProcessed)
	}

	return map[string]interface{}{
		"workers":        wp.workers,
		"running":        wp.running,
		"jobs_processed": wp.jobsProcessed,
		"total_errors":   wp.errors,
		"avg_duration":   avgDuration.String(),
		"queue_length":   len(wp.jobCh),
		"queue_capacity": cap(wp.jobCh),
	}
}

func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}
