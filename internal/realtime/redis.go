// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/metrics"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings so a bad address fails at startup.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	l := log.WithComponent("redis")

	l.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("redis connected")
	return client, nil
}

const putRetries = 3

// RedisStateCache keeps the last published event per booking so a channel
// created on any instance starts from the fleet-wide version.
type RedisStateCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStateCache(client *redis.Client, prefix string, ttl time.Duration) *RedisStateCache {
	if prefix == "" {
		prefix = "booksync:last:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStateCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisStateCache) key(bookingID string) string { return c.prefix + bookingID }

func (c *RedisStateCache) Last(ctx context.Context, bookingID string) (model.StatusEvent, bool) {
	ev, ok, err := c.get(ctx, c.client, bookingID)
	if err != nil {
		l := log.WithComponent("realtime")
		l.Warn().Err(err).Str(log.FieldBookingID, bookingID).Msg("state cache get failed")
		return model.StatusEvent{}, false
	}
	return ev, ok
}

func (c *RedisStateCache) get(ctx context.Context, cmd redis.Cmdable, bookingID string) (model.StatusEvent, bool, error) {
	val, err := cmd.Get(ctx, c.key(bookingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.StatusEvent{}, false, nil
	}
	if err != nil {
		return model.StatusEvent{}, false, err
	}
	var ev model.StatusEvent
	if err := json.Unmarshal(val, &ev); err != nil {
		return model.StatusEvent{}, false, err
	}
	return ev, true, nil
}

// Put stores ev unless a newer version is already cached.
func (c *RedisStateCache) Put(ctx context.Context, ev model.StatusEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	key := c.key(ev.BookingID)
	txf := func(tx *redis.Tx) error {
		cur, ok, err := c.get(ctx, tx, ev.BookingID)
		if err != nil {
			return err
		}
		if ok && cur.Version >= ev.Version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < putRetries; i++ {
		err = c.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		metrics.IncRelayError("state_cache")
		l := log.WithComponent("realtime")
		l.Warn().Err(err).Str(log.FieldBookingID, ev.BookingID).Msg("state cache put failed")
	}
}

var _ StateCache = (*RedisStateCache)(nil)
