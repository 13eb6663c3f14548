package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/response"
)

// RateLimiter implements a Redis fixed-window rate limit per user or client IP
type RateLimiter struct {
	redisClient *redis.Client
	requests    int
	window      time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a new rate limiter
// requests: maximum number of requests allowed
// window: time window for the rate limit (e.g., 1 minute)
func NewRateLimiter(redisClient *redis.Client, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		requests:    requests,
		window:      window,
		now:         time.Now,
	}
}

// Middleware returns a Gin middleware for rate limiting. Redis failures fail open.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			identifier = "user:" + userID.String()
		}

		allowed, remaining, resetAt, err := rl.allow(c.Request.Context(), identifier)
		if err != nil {
			logger.Warn("Rate limit check failed, allowing request", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// allow counts one request in the current window
func (rl *RateLimiter) allow(ctx context.Context, identifier string) (bool, int, int64, error) {
	windowSeconds := int64(rl.window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	windowStart := rl.now().Unix() / windowSeconds * windowSeconds
	key := fmt.Sprintf("ratelimit:%s:%d", identifier, windowStart)

	var incr *redis.IntCmd
	_, err := rl.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rl.window)
		return nil
	})
	if err != nil {
		return false, 0, 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	count := int(incr.Val())
	remaining := rl.requests - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.requests, remaining, windowStart + windowSeconds, nil
}
