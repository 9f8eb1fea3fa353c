// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ratelimit

import (
	"time"
)

// StoreConfig holds configuration for counter store creation.
type StoreConfig struct {
	// RedisURL selects the Redis backend when non-empty.
	// Example: redis://localhost:6379/0
	RedisURL string

	// Prefix is the key prefix for Redis.
	Prefix string

	// SweepInterval is the background cleanup interval for the memory
	// backend (ignored by Redis, which expires keys itself).
	SweepInterval time.Duration
}

// DefaultStoreConfig returns default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Prefix:        "warden:limit:",
		SweepInterval: 5 * time.Minute,
	}
}

// NewStore creates a counter store based on the provided configuration.
// If RedisURL is set, counters are shared across instances via Redis;
// otherwise an in-memory store local to this process is used.
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.RedisURL != "" {
		return NewRedisStore(cfg.RedisURL, cfg.Prefix)
	}

	return NewMemoryStore(MemoryStoreOptions{
		SweepInterval: cfg.SweepInterval,
	}), nil
}
