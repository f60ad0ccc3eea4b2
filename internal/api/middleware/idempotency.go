package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/careerforge/careerforge/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const IdempotencyHeader = "Idempotency-Key"

type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type IdempotencyStore interface {
	// Reserve claims key. It returns false when the key is already claimed
	// or completed.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, r StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

const pendingMarker = "pending"

type RedisIdempotencyStore struct {
	rdb *redis.Client
}

func NewRedisIdempotencyStore(rdb *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb}
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, pendingMarker, ttl).Result()
}

// Get returns nil while the first request is still in flight.
func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*StoredResponse, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) || v == pendingMarker {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r StoredResponse
	if err := json.Unmarshal([]byte(v), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, r StoredResponse, ttl time.Duration) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, ttl).Err()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key from the same user on the same route. Requests without
// the header pass through. Failed attempts release the key so the client
// can retry.
func Idempotency(store IdempotencyStore, ttl time.Duration, l logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		idem := c.GetHeader(IdempotencyHeader)
		if store == nil || idem == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		if len(idem) > 128 {
			abort(c, http.StatusBadRequest, utils.CodeInvalidArgument, "Idempotency-Key too long")
			return
		}

		ctx := c.Request.Context()
		key := "idem:" + c.GetString("user_id") + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + idem

		if prev, err := store.Get(ctx, key); err != nil {
			l.WithError(err).Warn("idempotency store unavailable")
			c.Next()
			return
		} else if prev != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(prev.Status, prev.ContentType, prev.Body)
			c.Abort()
			return
		}

		ok, err := store.Reserve(ctx, key, ttl)
		if err != nil {
			l.WithError(err).Warn("idempotency store unavailable")
			c.Next()
			return
		}
		if !ok {
			abort(c, http.StatusConflict, utils.CodeConflict, "a request with this Idempotency-Key is already in progress")
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= 200 && status < 300 {
			err = store.Save(context.WithoutCancel(ctx), key, StoredResponse{
				Status:      status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        w.buf.Bytes(),
			}, ttl)
		} else {
			err = store.Release(context.WithoutCancel(ctx), key)
		}
		if err != nil {
			l.WithError(err).Warn("idempotency store write failed")
		}
	}
}
