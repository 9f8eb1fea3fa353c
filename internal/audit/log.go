// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package audit

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxEntries is the default capacity of the audit log.
const DefaultMaxEntries = 10000

// abortedStatusCode marks events whose requests never produced a response.
// 499 follows the nginx convention for "client closed request".
const abortedStatusCode = 499

// Log is a fixed-capacity, insertion-ordered buffer of events with
// oldest-first eviction. All methods are safe for concurrent use.
//
// Overflow is silent by design: the log is a rolling observation window,
// not a durable audit trail.
type Log struct {
	mu       sync.Mutex
	events   []*Event
	index    map[string]*Event
	capacity int
	clock    func() time.Time
	closed   atomic.Bool

	// Diagnostics
	staleUpdates  atomic.Int64
	outcomeWrites atomic.Int64
}

// LogOptions configures the audit log.
type LogOptions struct {
	// MaxEntries is the capacity before oldest-first eviction (default 10,000).
	MaxEntries int
	// Clock overrides the time source, used by tests.
	Clock func() time.Time
}

// NewLog creates a new bounded audit log.
func NewLog(opts LogOptions) *Log {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Log{
		events:   make([]*Event, 0, min(opts.MaxEntries, 1024)),
		index:    make(map[string]*Event),
		capacity: opts.MaxEntries,
		clock:    opts.Clock,
	}
}

// Append adds an event to the log and returns its id. A missing id or
// timestamp is filled in. If the log exceeds capacity the oldest entries
// are evicted until it fits; overflow is not an error.
func (l *Log) Append(e Event) string {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.clock()
	}
	if l.closed.Load() {
		return e.ID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored := e
	l.events = append(l.events, &stored)
	l.index[stored.ID] = &stored

	for len(l.events) > l.capacity {
		oldest := l.events[0]
		l.events = l.events[1:]
		delete(l.index, oldest.ID)
	}

	return stored.ID
}

// Update applies the outcome to an existing in-flight event, freezing it.
// An unknown id is tolerated: the event may have been evicted under load,
// so the call logs a warning and bumps a diagnostic counter instead of
// failing. A second update to an already-completed event is a no-op.
//
// Logging happens outside the critical section: the default slog handler
// may itself append to this log.
func (l *Log) Update(id string, outcome Outcome) {
	if l.closed.Load() {
		return
	}
	l.mu.Lock()

	e, ok := l.index[id]
	if !ok {
		l.mu.Unlock()
		l.staleUpdates.Add(1)
		slog.Warn("audit: update for unknown event id", "id", id)
		return
	}
	if e.Outcome != nil {
		// Already frozen; completion paths can race, first one wins.
		l.mu.Unlock()
		return
	}
	o := outcome
	e.Outcome = &o
	l.outcomeWrites.Add(1)
	l.mu.Unlock()
}

// SetResourceID fills in the resource id of an in-flight event. Route
// parameters are only known once routing has happened, after the event
// was appended. A completed event is frozen and left untouched.
func (l *Log) SetResourceID(id, resourceID string) {
	if l.closed.Load() || resourceID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.index[id]; ok && e.Outcome == nil {
		e.ResourceID = resourceID
	}
}

// PurgeOlderThan removes events created before cutoff and returns how
// many were removed. Used by scheduled retention.
func (l *Log) PurgeOlderThan(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[:0]
	removed := 0
	for _, e := range l.events {
		if e.Timestamp.Before(cutoff) {
			delete(l.index, e.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.events = kept
	return removed
}

// ReconcileStale finalizes events that have been in flight longer than
// maxAge with a synthetic aborted outcome, so cancelled requests do not
// linger and skew in-flight statistics. Returns the number reconciled.
func (l *Log) ReconcileStale(maxAge time.Duration) int {
	now := l.clock()
	cutoff := now.Add(-maxAge)

	l.mu.Lock()
	reconciled := 0
	for _, e := range l.events {
		if e.Outcome == nil && e.Timestamp.Before(cutoff) {
			e.Outcome = &Outcome{
				StatusCode:   abortedStatusCode,
				DurationMs:   now.Sub(e.Timestamp).Milliseconds(),
				ErrorSummary: "request aborted",
			}
			l.outcomeWrites.Add(1)
			reconciled++
		}
	}
	l.mu.Unlock()

	// Warn after releasing the lock: the default slog handler may append
	// to this same log.
	if reconciled > 0 {
		slog.Warn("audit: reconciled stale in-flight events", "count", reconciled)
	}
	return reconciled
}

// Snapshot returns a point-in-time copy of the log in insertion order.
// The returned events are detached from the log's internals.
func (l *Log) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.events))
	for i, e := range l.events {
		out[i] = e.clone()
	}
	return out
}

// Len returns the current number of events in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// StaleUpdates returns how many updates targeted unknown event ids.
func (l *Log) StaleUpdates() int64 {
	return l.staleUpdates.Load()
}

// OutcomeWrites returns how many outcome mutations were actually applied.
func (l *Log) OutcomeWrites() int64 {
	return l.outcomeWrites.Load()
}

// Close releases the log. Further appends are silently dropped.
func (l *Log) Close() error {
	if l.closed.CompareAndSwap(false, true) {
		l.mu.Lock()
		l.events = nil
		l.index = map[string]*Event{}
		l.mu.Unlock()
	}
	return nil
}
