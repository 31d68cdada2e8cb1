package monitoring

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

var processStart = time.Now()

// Metrics accumulates request counters for the whole process.
type Metrics struct {
	mu sync.RWMutex

	RequestCount    int64
	RequestDuration time.Duration
	ActiveRequests  int64
	ErrorCount      int64
	StatusCodes     map[string]int64
	Endpoints       map[string]int64
	StartTime       time.Time
	LastRequest     time.Time

	totalDuration time.Duration
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	RequestCount        int64            `json:"request_count"`
	AverageResponseTime string           `json:"average_response_time"`
	ActiveRequests      int64            `json:"active_requests"`
	ErrorCount          int64            `json:"error_count"`
	StatusCodes         map[string]int64 `json:"status_codes"`
	Endpoints           map[string]int64 `json:"endpoints"`
	StartTime           time.Time        `json:"start_time"`
	LastRequest         time.Time        `json:"last_request"`
}

type MemoryUsage struct {
	Alloc      uint64 `json:"alloc_mb"`
	TotalAlloc uint64 `json:"total_alloc_mb"`
	Sys        uint64 `json:"sys_mb"`
	NumGC      uint32 `json:"num_gc"`
}

type SystemMetrics struct {
	Uptime         time.Duration `json:"uptime"`
	GoroutineCount int           `json:"goroutines"`
	CPUCount       int           `json:"cpus"`
	GoVersion      string        `json:"go_version"`
	MemoryUsage    MemoryUsage   `json:"memory"`
}

var globalMetrics = &Metrics{
	StatusCodes: make(map[string]int64),
	Endpoints:   make(map[string]int64),
	StartTime:   time.Now(),
}

// MetricsMiddleware counts requests per status and per route. Routes are
// keyed by their pattern so ids in the path do not create new entries.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		globalMetrics.mu.Lock()
		globalMetrics.ActiveRequests++
		globalMetrics.mu.Unlock()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		endpoint := c.Request.Method + " " + route

		globalMetrics.mu.Lock()
		defer globalMetrics.mu.Unlock()

		globalMetrics.ActiveRequests--
		globalMetrics.RequestCount++
		globalMetrics.totalDuration += duration
		globalMetrics.RequestDuration = globalMetrics.totalDuration / time.Duration(globalMetrics.RequestCount)
		globalMetrics.LastRequest = start
		globalMetrics.StatusCodes[http.StatusText(status)]++
		globalMetrics.Endpoints[endpoint]++
		if status >= http.StatusInternalServerError {
			globalMetrics.ErrorCount++
		}
	}
}

func GetMetrics() MetricsSnapshot {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	statusCodes := make(map[string]int64, len(globalMetrics.StatusCodes))
	for k, v := range globalMetrics.StatusCodes {
		statusCodes[k] = v
	}
	endpoints := make(map[string]int64, len(globalMetrics.Endpoints))
	for k, v := range globalMetrics.Endpoints {
		endpoints[k] = v
	}

	return MetricsSnapshot{
		RequestCount:        globalMetrics.RequestCount,
		AverageResponseTime: globalMetrics.RequestDuration.String(),
		ActiveRequests:      globalMetrics.ActiveRequests,
		ErrorCount:          globalMetrics.ErrorCount,
		StatusCodes:         statusCodes,
		Endpoints:           endpoints,
		StartTime:           globalMetrics.StartTime,
		LastRequest:         globalMetrics.LastRequest,
	}
}

func GetSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		Uptime:         time.Since(processStart),
		GoroutineCount: runtime.NumGoroutine(),
		CPUCount:       runtime.NumCPU(),
		GoVersion:      runtime.Version(),
		MemoryUsage: MemoryUsage{
			Alloc:      bToMb(m.Alloc),
			TotalAlloc: bToMb(m.TotalAlloc),
			Sys:        bToMb(m.Sys),
			NumGC:      m.NumGC,
		},
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

// MetricsHandler serves GET /metrics.
func MetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"application": GetMetrics(),
			"system":      GetSystemMetrics(),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
