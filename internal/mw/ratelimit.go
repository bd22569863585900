package mw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ClientRateLimiter keeps a token bucket per client. Buckets of clients
// idle for longer than the idle period are evicted.
type ClientRateLimiter struct {
	limiters *cache.Cache
	r        rate.Limit
	b        int
}

// NewClientRateLimiter creates a limiter allowing r requests per second
// with bursts of b.
func NewClientRateLimiter(r rate.Limit, b int, idle time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: cache.New(idle, idle),
		r:        r,
		b:        b,
	}
}

// Limiter returns the bucket for client, creating it on first use.
func (l *ClientRateLimiter) Limiter(client string) *rate.Limiter {
	if v, ok := l.limiters.Get(client); ok {
		l.limiters.SetDefault(client, v)
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.r, l.b)
	if err := l.limiters.Add(client, limiter, cache.DefaultExpiration); err != nil {
		// Another request created it first.
		if v, ok := l.limiters.Get(client); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// Handler rejects requests over the client's budget with 429.
func (l *ClientRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
