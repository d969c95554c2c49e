package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// TokenBucket is an in-memory per-client rate limiter; for prod swap to
// Redis.
type TokenBucket struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
	lastGC   time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates a limiter with capacity tokens refilled at rate per
// minute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
		lastGC:   time.Now(),
	}
}

// GinMiddleware returns a gin handler enforcing per-IP limits.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *TokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.gcLocked(now)

	b, ok := l.state[key]
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// gcLocked drops buckets idle long enough to be full again, so the map does
// not grow with one entry per client forever.
func (l *TokenBucket) gcLocked(now time.Time) {
	if now.Sub(l.lastGC) < 10*time.Minute {
		return
	}
	for key, b := range l.state {
		if now.Sub(b.last) > 10*time.Minute {
			delete(l.state, key)
		}
	}
	l.lastGC = now
}
