package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterStaleAfter = 10 * time.Minute
)

// ipLimiters tracks one token bucket per client IP. This is the transport
// level throttle; reputation-based action quotas live in the service layer.
type ipLimiters struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	rps     rate.Limit
	burst   int
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(rps, burst int) *ipLimiters {
	return &ipLimiters{
		buckets: make(map[string]*ipBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b.limiter.Allow()
}

// sweep drops buckets that have not been touched for limiterStaleAfter.
func (l *ipLimiters) sweep() {
	l.mu.Lock()
	for ip, b := range l.buckets {
		if time.Since(b.lastSeen) > limiterStaleAfter {
			delete(l.buckets, ip)
		}
	}
	l.mu.Unlock()
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting. rps is the steady-state requests per second; burst is the
// maximum burst size.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	limiters := newIPLimiters(rps, burst)

	go func() {
		for range time.Tick(limiterSweepEvery) {
			limiters.sweep()
		}
	}()

	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
