// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed window counter store, for deployments
// where several server instances should share rate-limit state.
// Window expiry is delegated to Redis key TTLs, so SweepExpired is a no-op.
type RedisStore struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// decrementScript decrements a counter without dropping it below zero
// and without resurrecting a missing key. Runs atomically in Redis.
var decrementScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) > 0 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

// NewRedisStore creates a Redis counter store from a connection URL
// (e.g. redis://localhost:6379/0). The connection is verified with a ping.
func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	if s.closed.Load() {
		return Counter{}, ErrStoreClosed
	}

	redisKey := s.prefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Counter{}, fmt.Errorf("redis incr: %w", err)
	}

	// First hit in a window owns setting the expiry.
	if count == 1 {
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return Counter{}, fmt.Errorf("redis pexpire: %w", err)
		}
		return Counter{Count: count, WindowEnd: time.Now().Add(window)}, nil
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		// Key lost its TTL (e.g. restored from a dump); reattach it.
		_ = s.client.PExpire(ctx, redisKey, window).Err()
		ttl = window
	}

	return Counter{Count: count, WindowEnd: time.Now().Add(ttl)}, nil
}

// Decrement implements Store.
func (s *RedisStore) Decrement(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	if err := decrementScript.Run(ctx, s.client, []string{s.prefix + key}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis decrement: %w", err)
	}
	return nil
}

// Peek implements Store.
func (s *RedisStore) Peek(ctx context.Context, key string) (Counter, bool, error) {
	if s.closed.Load() {
		return Counter{}, false, ErrStoreClosed
	}

	redisKey := s.prefix + key

	count, err := s.client.Get(ctx, redisKey).Int64()
	if errors.Is(err, redis.Nil) {
		return Counter{}, false, nil
	}
	if err != nil {
		return Counter{}, false, fmt.Errorf("redis get: %w", err)
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		return Counter{}, false, nil
	}

	return Counter{Count: count, WindowEnd: time.Now().Add(ttl)}, true, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// SweepExpired implements Store. Redis expires keys itself.
func (s *RedisStore) SweepExpired(_ context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	return 0, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		return s.client.Close()
	}
	return nil
}

// Ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)
