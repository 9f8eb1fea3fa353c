// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package audit provides the in-memory, bounded audit trail of request
// observations. Events are created when a request enters the pipeline,
// finalized exactly once when the response completes, and evicted either
// by capacity overflow or by scheduled retention.
package audit

import (
	"context"
	"time"
)

// Actor identifies the authenticated principal behind a request.
// A nil Actor on an event means the request was unauthenticated.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Network holds the client-side network details of a request.
type Network struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	Country   string `json:"country,omitempty"`
}

// Outcome describes how a request finished. It is set exactly once;
// an event without an Outcome is still in flight.
type Outcome struct {
	StatusCode   int    `json:"status_code"`
	DurationMs   int64  `json:"duration_ms"`
	ErrorSummary string `json:"error_summary,omitempty"`
}

// Event is a single captured request/response observation.
type Event struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Actor      *Actor         `json:"actor,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Network    Network        `json:"network"`
	Request    map[string]any `json:"request,omitempty"`
	Outcome    *Outcome       `json:"outcome,omitempty"`
}

// Completed reports whether the event's response has been finalized.
func (e *Event) Completed() bool {
	return e.Outcome != nil
}

// Failed reports whether the event completed with an error-class status.
func (e *Event) Failed() bool {
	return e.Outcome != nil && e.Outcome.StatusCode >= 400
}

// ActorID returns the actor's user id, or empty for unauthenticated events.
func (e *Event) ActorID() string {
	if e.Actor == nil {
		return ""
	}
	return e.Actor.UserID
}

// clone returns a copy of the event detached from the log's internals,
// so snapshot consumers never observe concurrent mutation.
func (e *Event) clone() Event {
	out := *e
	if e.Actor != nil {
		a := *e.Actor
		out.Actor = &a
	}
	if e.Outcome != nil {
		o := *e.Outcome
		out.Outcome = &o
	}
	if e.Request != nil {
		req := make(map[string]any, len(e.Request))
		for k, v := range e.Request {
			req[k] = v
		}
		out.Request = req
	}
	return out
}

type contextKey string

const contextKeyActor contextKey = "warden_actor"

// WithActor returns a context carrying the resolved request actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKeyActor, actor)
}

// ActorFromContext retrieves the actor from the context.
// Returns nil if the request is unauthenticated.
func ActorFromContext(ctx context.Context) *Actor {
	actor, ok := ctx.Value(contextKeyActor).(Actor)
	if !ok {
		return nil
	}
	return &actor
}
