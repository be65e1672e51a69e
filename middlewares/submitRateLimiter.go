package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"civicanchor-be/logger"
)

// SubmitWindow is the fixed window each client's submission count lives in.
const SubmitWindow = 24 * time.Hour

// Counter is the fixed-window counter behind the submission limiter.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// RedisCounter runs the counter on Redis INCR, EXPIRE and TTL.
type RedisCounter struct {
	Client *redis.Client
}

func (r RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	return r.Client.Incr(ctx, key).Result()
}

func (r RedisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.Client.Expire(ctx, key, ttl).Err()
}

func (r RedisCounter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.Client.TTL(ctx, key).Result()
}

// SubmitRateLimiter allows limit submissions per client IP per SubmitWindow.
// A nil counter disables limiting. Counter errors let the request through so
// an unavailable Redis never blocks offline-first submission.
func SubmitRateLimiter(counter Counter, prefix string, limit int, log *slog.Logger) gin.HandlerFunc {
	log = logger.OrDefault(log)
	if counter == nil || limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := prefix + ":" + c.ClientIP()

		count, err := counter.Incr(ctx, key)
		if err != nil {
			log.Warn("rate_limit_unavailable", "key", key, "error", err)
			c.Next()
			return
		}

		// TTL only on the first hit so the window is fixed, not sliding.
		if count == 1 {
			if err := counter.Expire(ctx, key, SubmitWindow); err != nil {
				log.Warn("rate_limit_expire_failed", "key", key, "error", err)
			}
		}

		if count > int64(limit) {
			retryAfter, _ := counter.TTL(ctx, key)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter.Seconds(),
			})
			return
		}

		c.Next()
	}
}
