package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	healthCheckTimeout = 5 * time.Second
)

type HealthCheckFunc func(ctx context.Context) error

type HealthCheck struct {
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	Message     string          `json:"message,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	Duration    string          `json:"duration"`
	Check       HealthCheckFunc `json:"-"`
}

type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]HealthCheck
}

var globalHealthChecker = &HealthChecker{
	checks: make(map[string]HealthCheck),
}

// RegisterHealthCheck adds or replaces a named dependency check.
func RegisterHealthCheck(name string, check HealthCheckFunc) {
	globalHealthChecker.mu.Lock()
	defer globalHealthChecker.mu.Unlock()
	globalHealthChecker.checks[name] = HealthCheck{Name: name, Check: check}
}

// RunHealthChecks runs every registered check concurrently, each bounded by
// healthCheckTimeout.
func RunHealthChecks() map[string]HealthCheck {
	globalHealthChecker.mu.RLock()
	checks := make([]HealthCheck, 0, len(globalHealthChecker.checks))
	for _, check := range globalHealthChecker.checks {
		checks = append(checks, check)
	}
	globalHealthChecker.mu.RUnlock()

	results := make(map[string]HealthCheck, len(checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, check := range checks {
		wg.Add(1)
		go func(check HealthCheck) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
			defer cancel()

			start := time.Now()
			err := check.Check(ctx)

			result := HealthCheck{
				Name:        check.Name,
				Status:      statusHealthy,
				LastChecked: start,
				Duration:    time.Since(start).String(),
			}
			if err != nil {
				result.Status = statusUnhealthy
				result.Message = err.Error()
			}

			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	return results
}

func allHealthy(results map[string]HealthCheck) bool {
	for _, r := range results {
		if r.Status != statusHealthy {
			return false
		}
	}
	return true
}

// HealthHandler serves GET /health with the result of every check.
func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		results := RunHealthChecks()

		status, code := statusHealthy, http.StatusOK
		if !allHealthy(results) {
			status, code = statusUnhealthy, http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"checks":    results,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessHandler serves GET /ready; traffic should only be routed here
// once every dependency answers.
func ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allHealthy(RunHealthChecks()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "alive",
			"uptime": time.Since(processStart).String(),
		})
	}
}
