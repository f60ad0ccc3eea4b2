package config

import (
	"context"
	"errors"
)

var errNotInitialized = errors.New("not initialized")

// Ping checks every backing store the server was started with.
func Ping(ctx context.Context) map[string]error {
	out := map[string]error{}

	if MongoClient == nil {
		out["mongo"] = errNotInitialized
	} else {
		out["mongo"] = MongoClient.Ping(ctx, nil)
	}

	if PostgresDB == nil {
		out["postgres"] = errNotInitialized
	} else if sqlDB, err := PostgresDB.DB(); err != nil {
		out["postgres"] = err
	} else {
		out["postgres"] = sqlDB.PingContext(ctx)
	}

	if RedisClient == nil {
		out["redis"] = errNotInitialized
	} else {
		out["redis"] = RedisClient.Ping(ctx).Err()
	}
	return out
}
