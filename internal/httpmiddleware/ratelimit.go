package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu    sync.Mutex
	ips   map[string]*visitor
	r     rate.Limit
	b     int
	idle  time.Duration
	sweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter allows perSec requests per second per IP with the given burst.
func NewIPRateLimiter(perSec float64, burst int) *IPRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		ips:  make(map[string]*visitor),
		r:    rate.Limit(perSec),
		b:    burst,
		idle: 10 * time.Minute,
	}
}

// Allow reports whether a request from ip may proceed.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.limiter(ip, time.Now()).Allow()
}

func (l *IPRateLimiter) limiter(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.sweep) > l.idle {
		for k, v := range l.ips {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.ips, k)
			}
		}
		l.sweep = now
	}

	v, ok := l.ips[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Len reports tracked IPs.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ips)
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (l *IPRateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.Allow(ip) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status": "error",
				"error":  gin.H{"kind": "RateLimited", "reason": "rate limit exceeded"},
			})
			return
		}
		c.Next()
	}
}
