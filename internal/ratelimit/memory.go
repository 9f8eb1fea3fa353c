// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is a thread-safe in-memory window counter store.
// A single mutex serializes Increment and Decrement, so skip-compensation
// cannot race with a concurrent increment for the same key.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	clock    func() time.Time
	stopCh   chan struct{}
	closed   atomic.Bool
}

// memoryCounter holds a counter with its window expiry.
type memoryCounter struct {
	count     int64
	windowEnd time.Time
}

// MemoryStoreOptions configures the memory store.
type MemoryStoreOptions struct {
	// SweepInterval is the interval for background expired-counter
	// cleanup (0 = no background sweep).
	SweepInterval time.Duration
	// Clock overrides the time source, used by tests.
	Clock func() time.Time
}

// NewMemoryStore creates a new in-memory counter store.
func NewMemoryStore(opts MemoryStoreOptions) *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]*memoryCounter),
		clock:    opts.Clock,
		stopCh:   make(chan struct{}),
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if opts.SweepInterval > 0 {
		go s.sweepLoop(opts.SweepInterval)
	}
	return s
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (Counter, error) {
	if s.closed.Load() {
		return Counter{}, ErrStoreClosed
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	// The boundary is exclusive on the old window: a request arriving
	// exactly at windowEnd starts a fresh window.
	if !ok || !now.Before(c.windowEnd) {
		c = &memoryCounter{count: 1, windowEnd: now.Add(window)}
		s.counters[key] = c
		return Counter{Count: 1, WindowEnd: c.windowEnd}, nil
	}

	c.count++
	return Counter{Count: c.count, WindowEnd: c.windowEnd}, nil
}

// Decrement implements Store.
func (s *MemoryStore) Decrement(_ context.Context, key string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.counters[key]; ok && c.count > 0 {
		c.count--
	}
	return nil
}

// Peek implements Store. An expired counter reads as absent.
func (s *MemoryStore) Peek(_ context.Context, key string) (Counter, bool, error) {
	if s.closed.Load() {
		return Counter{}, false, ErrStoreClosed
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !now.Before(c.windowEnd) {
		return Counter{}, false, nil
	}
	return Counter{Count: c.count, WindowEnd: c.windowEnd}, true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, key)
	return nil
}

// SweepExpired implements Store.
func (s *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, c := range s.counters {
		if !now.Before(c.windowEnd) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed, nil
}

// Close stops the sweep goroutine and releases resources.
func (s *MemoryStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	return nil
}

// Len returns the number of live counters, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

// sweepLoop periodically removes expired counters.
func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.SweepExpired(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
