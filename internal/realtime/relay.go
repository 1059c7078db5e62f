// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/metrics"
)

const relayTimeout = 2 * time.Second

type relayEnvelope struct {
	Origin string            `json:"origin"`
	Event  model.StatusEvent `json:"event"`
}

// RedisRelay extends a Hub across instances over one pub/sub channel.
// Local subscribers get the event first; remote copies that arrive later
// are dropped by the hub's version filter.
type RedisRelay struct {
	hub     *Hub
	client  *redis.Client
	channel string
	origin  string
	cache   StateCache
}

func NewRedisRelay(hub *Hub, client *redis.Client, channel string, cache StateCache) *RedisRelay {
	if channel == "" {
		channel = "booksync:events"
	}
	return &RedisRelay{
		hub:     hub,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		cache:   cache,
	}
}

// Origin identifies this instance on the relay channel.
func (r *RedisRelay) Origin() string { return r.origin }

func (r *RedisRelay) Publish(ctx context.Context, ev model.StatusEvent) {
	r.hub.Publish(ctx, ev)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), relayTimeout)
	defer cancel()
	if r.cache != nil {
		r.cache.Put(pctx, ev)
	}
	data, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: ev})
	if err != nil {
		return
	}
	if err := r.client.Publish(pctx, r.channel, data).Err(); err != nil {
		metrics.IncRelayError("redis")
		l := log.WithComponent("realtime")
		l.Warn().Err(err).
			Str(log.FieldBookingID, ev.BookingID).
			Msg("relay publish failed")
	}
}

// Run feeds remote events into the local hub until ctx is done. ready, if
// non-nil, is closed once the subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if ready != nil {
		close(ready)
	}
	l := log.WithComponent("realtime")
	l.Info().Str("channel", r.channel).Str("origin", r.origin).Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				metrics.IncRelayError("decode")
				l.Debug().Err(err).Msg("relay message dropped")
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			r.hub.Publish(ctx, env.Event)
		}
	}
}

var _ ports.Publisher = (*RedisRelay)(nil)
