package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"simpletasks/backend/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const tooManyAttempts = "Too Many Attempts."

// visitorIdleTTL is how long an idle client keeps its in-process limiter.
const visitorIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles each client IP in process memory.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	var (
		visitors  = make(map[string]*visitor)
		mu        sync.Mutex
		lastSweep = time.Now()
	)

	getVisitor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if now.Sub(lastSweep) > visitorIdleTTL {
			for key, v := range visitors {
				if now.Sub(v.lastSeen) > visitorIdleTTL {
					delete(visitors, key)
				}
			}
			lastSweep = now
		}

		v, exists := visitors[ip]
		if !exists {
			v = &visitor{limiter: rate.NewLimiter(r, b)}
			visitors[ip] = v
		}
		v.lastSeen = now
		return v.limiter
	}

	return func(c *gin.Context) {
		if !getVisitor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": tooManyAttempts})
			return
		}
		c.Next()
	}
}

// DistributedRateLimiter keeps a sliding window per key in Redis so limits
// hold across instances. Redis failures fail open.
type DistributedRateLimiter struct {
	redis   *redis.Client
	breaker *cache.CircuitBreaker
}

type RateLimit struct {
	Rate    int
	Window  time.Duration
	KeyFunc func(*gin.Context) string
	OnLimit func(*gin.Context)
}

func NewDistributedRateLimiter(redisClient *redis.Client) *DistributedRateLimiter {
	return &DistributedRateLimiter{
		redis:   redisClient,
		breaker: cache.NewCircuitBreaker(cache.DefaultCircuitBreakerConfig()),
	}
}

// CreateMiddleware returns a handler enforcing limit. The name scopes the
// Redis keys, so limits sharing a name share their windows.
func (rl *DistributedRateLimiter) CreateMiddleware(name string, limit *RateLimit) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", name, limit.KeyFunc(c))

		var allowed bool
		err := rl.breaker.Execute(func() error {
			var err error
			allowed, err = rl.checkLimit(c, key, limit)
			return err
		})
		if err != nil {
			c.Header("X-RateLimit-Error", "true")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Rate))

		if !allowed {
			if limit.OnLimit != nil {
				limit.OnLimit(c)
				c.Abort()
				return
			}

			c.Header("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message":     tooManyAttempts,
				"retry_after": limit.Window.Seconds(),
			})
			return
		}

		c.Next()
	}
}

func (rl *DistributedRateLimiter) checkLimit(c *gin.Context, key string, limit *RateLimit) (bool, error) {
	ctx := c.Request.Context()

	now := time.Now().UnixNano()
	windowStart := now - limit.Window.Nanoseconds()

	// members must be unique or concurrent requests in the same
	// nanosecond collapse into one entry
	member, err := uuid.NewV4()
	if err != nil {
		return false, err
	}

	pipe := rl.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: member.String()})
	pipe.Expire(ctx, key, limit.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to execute rate limit pipeline: %w", err)
	}

	return countCmd.Val() < int64(limit.Rate), nil
}

func IPKeyFunc(c *gin.Context) string {
	return c.ClientIP()
}

// UserKeyFunc keys by the authenticated user, falling back to the client IP
// on routes that run before authentication.
func UserKeyFunc(c *gin.Context) string {
	userID, exists := c.Get(ContextUserID)
	if !exists {
		return c.ClientIP()
	}
	return fmt.Sprintf("user:%v", userID)
}
