package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RateLimiter is a sliding window limiter keyed by viewer token.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	rl.prune(windowStart)

	fresh := rl.history[key]
	if len(fresh) >= rl.limit {
		return false
	}
	rl.history[key] = append(fresh, now)
	return true
}

// prune drops attempts older than windowStart and forgets idle keys.
func (rl *RateLimiter) prune(windowStart time.Time) {
	for key, attempts := range rl.history {
		fresh := attempts[:0]
		for _, t := range attempts {
			if t.After(windowStart) {
				fresh = append(fresh, t)
			}
		}
		if len(fresh) == 0 {
			delete(rl.history, key)
			continue
		}
		rl.history[key] = fresh
	}
}

// Len reports how many viewers have attempts inside the window.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.GetString(tokenKey)
		if !rl.Allow(sid) {
			log.Warn().Str("module", "adapters.http").Str("sid", sid).Str("path", c.FullPath()).Msg("rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
