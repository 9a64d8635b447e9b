package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"skibook/internal/api"
	"skibook/internal/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter hands out a token bucket per caller key, usually the client IP.
// Buckets untouched for longer than idle are dropped by a background sweep.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time

	// Paths with one of these prefixes are never throttled.
	exempt []string

	done chan struct{}
	once sync.Once
}

type bucket struct {
	*rate.Limiter
	touched time.Time
}

func NewRateLimiter(rps float64, burst int, idle time.Duration, exempt ...string) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		exempt:  exempt,
		done:    make(chan struct{}),
	}
	go rl.sweep(time.Minute)
	return rl
}

func (rl *RateLimiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			rl.evict()
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) evict() {
	cutoff := rl.now().Add(-rl.idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if b.touched.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) bucketFor(key string) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.touched = rl.now()
	return b
}

// Allow consumes one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.bucketFor(key).AllowN(rl.now(), 1)
}

// retryAfter is how long key has to wait for its next token, in whole seconds.
func (rl *RateLimiter) retryAfter(key string) int {
	b := rl.bucketFor(key)
	if rl.limit <= 0 {
		return 1
	}
	missing := 1 - b.TokensAt(rl.now())
	if missing <= 0 {
		return 1
	}
	return int(math.Ceil(missing / float64(rl.limit)))
}

func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) isExempt(path string) bool {
	for _, prefix := range rl.exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.isExempt(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := c.ClientIP()
		if rl.Allow(key) {
			c.Next()
			return
		}

		metrics.RecordRateLimited()
		c.Header("Retry-After", strconv.Itoa(rl.retryAfter(key)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, api.ErrorResponse{Error: "rate limit exceeded"})
	}
}
