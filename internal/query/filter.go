// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package query filters, paginates, summarizes, and exports snapshots of
// the audit log for the admin surface.
package query

import (
	"fmt"
	"time"

	"github.com/olegiv/warden-go/internal/audit"
)

// Field names an event dimension a filter can apply to.
type Field string

// Filterable event fields.
const (
	FieldActorID    Field = "actor_id"
	FieldAction     Field = "action"
	FieldResource   Field = "resource"
	FieldResourceID Field = "resource_id"
	FieldIP         Field = "ip"
	FieldTimestamp  Field = "timestamp"
)

// Op is a filter operator.
type Op string

// Filter operators. Equals applies to string fields, Since/Before to the
// timestamp field.
const (
	OpEquals Op = "eq"
	OpSince  Op = "since"
	OpBefore Op = "before"
)

// Filter is one tagged filter expression. Filters combine conjunctively;
// an empty filter set matches everything. New dimensions are added by
// extending the Field set, not by new ad hoc parameters.
type Filter struct {
	Field Field
	Op    Op
	Value string
	Time  time.Time // used by Since/Before instead of Value
}

// Validate checks that the field/operator combination is supported.
func (f Filter) Validate() error {
	switch f.Op {
	case OpEquals:
		switch f.Field {
		case FieldActorID, FieldAction, FieldResource, FieldResourceID, FieldIP:
			return nil
		}
		return fmt.Errorf("query: field %q does not support equals", f.Field)
	case OpSince, OpBefore:
		if f.Field != FieldTimestamp {
			return fmt.Errorf("query: operator %q applies to timestamp only", f.Op)
		}
		return nil
	default:
		return fmt.Errorf("query: unknown operator %q", f.Op)
	}
}

// Matches reports whether an event satisfies the filter.
func (f Filter) Matches(e *audit.Event) bool {
	switch f.Op {
	case OpEquals:
		return f.fieldValue(e) == f.Value
	case OpSince:
		return !e.Timestamp.Before(f.Time)
	case OpBefore:
		return e.Timestamp.Before(f.Time)
	default:
		return false
	}
}

// fieldValue extracts the compared string dimension from an event.
func (f Filter) fieldValue(e *audit.Event) string {
	switch f.Field {
	case FieldActorID:
		return e.ActorID()
	case FieldAction:
		return e.Action
	case FieldResource:
		return e.Resource
	case FieldResourceID:
		return e.ResourceID
	case FieldIP:
		return e.Network.IP
	default:
		return ""
	}
}

// applyFilters returns the events matching every filter, preserving order.
func applyFilters(events []audit.Event, filters []Filter) []audit.Event {
	if len(filters) == 0 {
		return events
	}

	out := make([]audit.Event, 0, len(events))
outer:
	for i := range events {
		for _, f := range filters {
			if !f.Matches(&events[i]) {
				continue outer
			}
		}
		out = append(out, events[i])
	}
	return out
}
