// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// testClock is an adjustable time source for window tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(clock *testClock) *MemoryStore {
	return NewMemoryStore(MemoryStoreOptions{Clock: clock.Now})
}

func TestMemoryStore_IncrementCreatesFreshCounter(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	c, err := store.Increment(ctx, "ip:1.2.3.4", time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if c.Count != 1 {
		t.Errorf("expected count 1, got %d", c.Count)
	}
	if want := clock.Now().Add(time.Minute); !c.WindowEnd.Equal(want) {
		t.Errorf("expected windowEnd %v, got %v", want, c.WindowEnd)
	}
}

func TestMemoryStore_WindowReset(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if c, _ := store.Increment(ctx, "k", time.Minute); c.Count != 1 {
		t.Fatalf("expected count 1, got %d", c.Count)
	}

	clock.Advance(time.Minute + time.Millisecond)

	// After the window has elapsed a fresh counter starts at 1, not 2.
	c, err := store.Increment(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if c.Count != 1 {
		t.Errorf("expected fresh counter with count 1, got %d", c.Count)
	}
}

func TestMemoryStore_WindowBoundaryIsExclusive(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	first, _ := store.Increment(ctx, "k", time.Minute)

	// A request arriving exactly at windowEnd starts a fresh window.
	clock.Advance(time.Minute)
	c, _ := store.Increment(ctx, "k", time.Minute)
	if c.Count != 1 {
		t.Errorf("expected fresh window at boundary, got count %d", c.Count)
	}
	if !c.WindowEnd.After(first.WindowEnd) {
		t.Error("expected a new windowEnd after the boundary")
	}
}

func TestMemoryStore_IncrementWithinWindow(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	first, _ := store.Increment(ctx, "k", time.Minute)
	clock.Advance(30 * time.Second)
	c, _ := store.Increment(ctx, "k", time.Minute)

	if c.Count != 2 {
		t.Errorf("expected count 2, got %d", c.Count)
	}
	if !c.WindowEnd.Equal(first.WindowEnd) {
		t.Error("windowEnd must not move on increments within the window")
	}
}

func TestMemoryStore_DecrementFloorsAtZero(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	_, _ = store.Increment(ctx, "k", time.Minute)
	_ = store.Decrement(ctx, "k")
	_ = store.Decrement(ctx, "k")
	_ = store.Decrement(ctx, "missing")

	c, ok, err := store.Peek(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Peek failed: ok=%v err=%v", ok, err)
	}
	if c.Count != 0 {
		t.Errorf("expected count floored at 0, got %d", c.Count)
	}
}

func TestMemoryStore_PeekDoesNotMutate(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if _, ok, _ := store.Peek(ctx, "k"); ok {
		t.Error("expected absent counter")
	}

	_, _ = store.Increment(ctx, "k", time.Minute)
	_, _, _ = store.Peek(ctx, "k")
	c, _, _ := store.Peek(ctx, "k")
	if c.Count != 1 {
		t.Errorf("peek must not mutate, got count %d", c.Count)
	}

	// Expired counters read as absent.
	clock.Advance(2 * time.Minute)
	if _, ok, _ := store.Peek(ctx, "k"); ok {
		t.Error("expected expired counter to read as absent")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	_, _ = store.Increment(ctx, "k", time.Minute)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	c, _ := store.Increment(ctx, "k", time.Minute)
	if c.Count != 1 {
		t.Errorf("expected fresh counter after delete, got %d", c.Count)
	}
}

func TestMemoryStore_SweepExpired(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	_, _ = store.Increment(ctx, "short", time.Second)
	_, _ = store.Increment(ctx, "long", time.Hour)

	clock.Advance(time.Minute)

	removed, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 counter left, got %d", store.Len())
	}
}

func TestMemoryStore_ClosedStoreErrors(t *testing.T) {
	store := NewMemoryStore(MemoryStoreOptions{})
	_ = store.Close()

	if _, err := store.Increment(context.Background(), "k", time.Minute); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore(MemoryStoreOptions{})
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = store.Increment(ctx, "shared", time.Hour)
			}
		}()
	}
	wg.Wait()

	c, ok, _ := store.Peek(ctx, "shared")
	if !ok || c.Count != 1000 {
		t.Errorf("expected count 1000, got %d (ok=%v)", c.Count, ok)
	}
}
