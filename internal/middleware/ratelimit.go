// ratelimit.go implements per-user rate limiting with token buckets from
// golang.org/x/time/rate.
//
// Each user gets a bucket holding up to N tokens, refilled at N per hour.
// Each request consumes one token; an empty bucket yields 429.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

// RateLimiter tracks request rates per user.
type RateLimiter struct {
	perHour int

	mu       sync.Mutex
	limiters map[string]*userLimiter
	now      func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perHour requests per user.
// A non-positive perHour disables limiting.
func NewRateLimiter(perHour int) *RateLimiter {
	return &RateLimiter{
		perHour:  perHour,
		limiters: make(map[string]*userLimiter),
		now:      time.Now,
	}
}

// RateLimit returns Gin middleware that enforces per-user limits. It must
// run after JWTAuth.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == "" || rl.perHour <= 0 {
			c.Next()
			return
		}

		allowed, remaining := rl.allow(userID)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.perHour))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:   "rate_limit_exceeded",
				Message: "Rate limit exceeded. Try again later.",
				Code:    http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(userID string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.perHour)/3600.0), rl.perHour),
		}
		rl.limiters[userID] = ul
	}
	ul.lastSeen = now

	allowed := ul.limiter.AllowN(now, 1)
	remaining := int(ul.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

// Cleanup drops limiters idle for longer than maxIdle. An idle limiter has
// refilled anyway, so dropping it loses nothing.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	for id, ul := range rl.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(rl.limiters, id)
		}
	}
}

// RunCleanup calls Cleanup every interval until stop is closed.
func (rl *RateLimiter) RunCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(time.Hour)
		case <-stop:
			return
		}
	}
}
