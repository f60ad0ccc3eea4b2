package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/careerforge/careerforge/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Counter increments a fixed-window counter and reports the window's
// remaining lifetime.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if n == 1 {
		if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
			return n, window, err
		}
		return n, window, nil
	}
	ttl, err := r.rdb.TTL(ctx, key).Result()
	if err != nil {
		return n, window, err
	}
	if ttl < 0 {
		// key lost its expiry; reset it
		_ = r.rdb.Expire(ctx, key, window).Err()
		ttl = window
	}
	return n, ttl, nil
}

// RateLimit allows max requests per window per user (or client IP before
// auth). Counter failures let the request through.
func RateLimit(name string, counter Counter, max int64, window time.Duration, l logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if counter == nil || max <= 0 {
			c.Next()
			return
		}

		who := c.GetString("user_id")
		if who == "" {
			who = c.ClientIP()
		}
		key := "ratelimit:" + name + ":" + who

		n, ttl, err := counter.Incr(c.Request.Context(), key, window)
		if err != nil {
			l.WithError(err).WithField("limiter", name).Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		remaining := max - n
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(max, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if n > max {
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())+1))
			abort(c, http.StatusTooManyRequests, utils.CodeTooManyRequests, "Too many requests, please try again later.")
			return
		}
		c.Next()
	}
}
