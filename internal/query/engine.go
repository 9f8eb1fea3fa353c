// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package query

import (
	"sort"
	"time"

	"github.com/olegiv/warden-go/internal/audit"
)

// DefaultLimit is the page size used when none is requested.
const DefaultLimit = 100

// MaxLimit caps the page size a caller may request.
const MaxLimit = 1000

// Snapshotter supplies point-in-time copies of the audit log.
// *audit.Log satisfies it.
type Snapshotter interface {
	Snapshot() []audit.Event
}

// Engine runs read-only queries over audit log snapshots.
type Engine struct {
	source Snapshotter
	clock  func() time.Time
}

// EngineOptions configures the query engine.
type EngineOptions struct {
	// Clock overrides the time source, used by tests.
	Clock func() time.Time
}

// NewEngine creates a query engine over the given snapshot source.
func NewEngine(source Snapshotter, opts EngineOptions) *Engine {
	e := &Engine{source: source, clock: opts.Clock}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

// Options describes one paginated query.
type Options struct {
	Filters []Filter
	Offset  int
	Limit   int
}

// Result is the paginated query envelope. Total is the filtered count
// before pagination.
type Result struct {
	Data   []audit.Event `json:"data"`
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// Query filters, sorts (timestamp descending), and paginates the log.
func (e *Engine) Query(opts Options) Result {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	events := e.Collect(opts.Filters)
	total := len(events)
	if offset >= total {
		return Result{Data: []audit.Event{}, Total: total, Offset: offset, Limit: limit}
	}

	end := offset + limit
	if end > total {
		end = total
	}

	return Result{Data: events[offset:end], Total: total, Offset: offset, Limit: limit}
}

// Collect filters and sorts (timestamp descending) without pagination.
// Export uses it to serialize the full filtered log.
func (e *Engine) Collect(filters []Filter) []audit.Event {
	events := applyFilters(e.source.Snapshot(), filters)

	// Newest first; stable so same-instant events keep insertion order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events
}

// windowed returns snapshot events within the trailing window.
func (e *Engine) windowed(window time.Duration) []audit.Event {
	cutoff := e.clock().Add(-window)
	events := e.source.Snapshot()
	out := events[:0]
	for _, ev := range events {
		if !ev.Timestamp.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}
