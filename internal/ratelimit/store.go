// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ratelimit provides fixed-window rate limiting backed by a
// pluggable key-counter store. Counters are scoped to an arbitrary
// string key (IP, user, role, API key) and reset lazily when their
// window has passed.
package ratelimit

import (
	"context"
	"time"
)

// Counter is the observed state of a window counter.
type Counter struct {
	Count     int64
	WindowEnd time.Time
}

// Store defines the interface for window key-counter implementations.
// All implementations must be safe for concurrent use, and must apply
// Increment and Decrement for the same key atomically with respect to
// each other.
type Store interface {
	// Increment bumps the counter for key. If no counter exists, or the
	// existing one's window has passed, a fresh counter is created with
	// count 1 and a new window. Returns the post-increment state.
	// The window boundary is exclusive: a call arriving exactly at
	// WindowEnd starts a fresh window.
	Increment(ctx context.Context, key string, window time.Duration) (Counter, error)

	// Decrement is a best-effort compensating operation used when a
	// request should not count toward the limit after the fact.
	// It never drops a counter below zero.
	Decrement(ctx context.Context, key string) error

	// Peek reads the counter without mutating it. The second return
	// value is false when no live counter exists for the key.
	Peek(ctx context.Context, key string) (Counter, bool, error)

	// Delete removes the counter for key (administrative reset).
	Delete(ctx context.Context, key string) error

	// SweepExpired drops counters whose window has passed and returns
	// how many were removed. This is memory hygiene only; Increment is
	// correct without it.
	SweepExpired(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Error represents an error type for store operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

// ErrStoreClosed indicates the store has been closed.
const ErrStoreClosed Error = "ratelimit: store closed"
