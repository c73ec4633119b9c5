package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a quiet client keeps its bucket.
const limiterIdleTTL = 10 * time.Minute

// IPRateLimiter hands out one token bucket per client IP. Buckets of
// clients that stay quiet for the idle TTL are evicted.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	r        rate.Limit
	b        int
	idle     time.Duration
}

// NewIPRateLimiter creates a new IPRateLimiter.
func NewIPRateLimiter(r rate.Limit, b int, idle time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: cache.New(idle, idle),
		r:        r,
		b:        b,
		idle:     idle,
	}
}

// GetLimiter returns the bucket for ip, creating it on first use. Every call
// extends the bucket's lifetime.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	var limiter *rate.Limiter
	if v, ok := i.limiters.Get(ip); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(i.r, i.b)
	}
	i.limiters.Set(ip, limiter, i.idle)
	return limiter
}

// Len reports how many clients currently hold a bucket.
func (i *IPRateLimiter) Len() int {
	return i.limiters.ItemCount()
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewIPRateLimiter(r, b, limiterIdleTTL)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
