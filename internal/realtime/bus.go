package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type Publisher interface {
	Publish(ctx context.Context, room, event string, data any) error
}

// RedisBus publishes envelopes on room channels so every API replica can
// forward them to its own sockets.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, room, event string, data any) error {
	payload, err := NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel(room), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, rooms ...string) *redis.PubSub {
	chans := make([]string, 0, len(rooms))
	for _, r := range rooms {
		chans = append(chans, Channel(r))
	}
	return b.rdb.Subscribe(ctx, chans...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }
