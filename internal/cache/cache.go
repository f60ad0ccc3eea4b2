package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelPattern(ctx context.Context, pattern string) error
}

func HistoryKey(userID, query string) string {
	return "history:" + userID + ":" + query
}

func HistoryPattern(userID string) string {
	return "history:" + userID + ":*"
}
