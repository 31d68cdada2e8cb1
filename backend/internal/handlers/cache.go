package handlers

import (
	"net/http"
	"time"

	"simpletasks/backend/internal/cache"

	"github.com/gin-gonic/gin"
)

type CacheHandler struct {
	Cache  cache.Cache
	Warmer *cache.WorkerPool
}

func NewCacheHandler(cacheInstance cache.Cache, warmer *cache.WorkerPool) *CacheHandler {
	return &CacheHandler{Cache: cacheInstance, Warmer: warmer}
}

// GetCacheStats reports cache, circuit breaker and warmer counters.
// GET /metrics/cache
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	if h.Cache == nil {
		c.JSON(http.StatusOK, gin.H{"status": "disabled"})
		return
	}

	stats := gin.H{
		"status":    "enabled",
		"cache":     h.Cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if multi, ok := h.Cache.(*cache.MultiLevelCache); ok {
		stats["hit_rate"] = multi.GetMetrics().HitRate()
		stats["circuit_breaker"] = multi.GetCircuitBreaker().GetStats()
	}

	if h.Warmer != nil {
		stats["warmer"] = h.Warmer.GetStats()
	}

	c.JSON(http.StatusOK, stats)
}
