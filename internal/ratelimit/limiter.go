// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Limiter evaluates one policy against the counter store.
// The HTTP glue (headers, 429 body) lives in internal/middleware;
// the Limiter itself only decides and accounts.
type Limiter struct {
	store  Store
	policy Policy

	// failOpen controls the posture when the store cannot be reached:
	// false (the default) conservatively denies, true allows.
	failOpen bool

	clock func() time.Time
}

// Decision is the outcome of evaluating a request against a policy.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Count     int64
	WindowEnd time.Time
	// RetryAfter is the remaining window time, rounded up to whole
	// seconds. Meaningful only when the request was denied.
	RetryAfter time.Duration
	// Key is the counter key the request was accounted against
	// (the burst key when the burst window absorbed it).
	Key string
	// Message is the policy's denial message.
	Message string

	// accounted records whether an increment actually happened, so
	// Compensate never decrements after a store failure.
	accounted bool
}

// LimiterOptions configures a Limiter.
type LimiterOptions struct {
	FailOpen bool
	Clock    func() time.Time
}

// NewLimiter creates a limiter for the given policy. The policy must
// already be validated.
func NewLimiter(store Store, policy Policy, opts LimiterOptions) *Limiter {
	l := &Limiter{
		store:    store,
		policy:   policy,
		failOpen: opts.FailOpen,
		clock:    opts.Clock,
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	return l
}

// Policy returns the policy this limiter enforces.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Allow accounts the request and decides whether it may proceed.
func (l *Limiter) Allow(ctx context.Context, r *http.Request) Decision {
	identity := l.policy.keyFunc()(r)
	key := l.policy.Name + ":" + identity

	// Burst variant: a short secondary window absorbs brief spikes
	// without consuming sustained budget. If the short-window counter is
	// still under the burst cap, the request is accounted there; the
	// overflow increment is compensated and accounting falls back to the
	// sustained key.
	if l.policy.BurstMax > 0 {
		burstKey := l.policy.Name + ":burst:" + identity
		c, err := l.store.Increment(ctx, burstKey, l.policy.BurstWindow)
		if err != nil {
			return l.storeFailure(key, err)
		}
		if c.Count <= int64(l.policy.BurstMax) {
			return l.decide(c, l.policy.BurstMax, burstKey)
		}
		_ = l.store.Decrement(ctx, burstKey)
	}

	c, err := l.store.Increment(ctx, key, l.policy.Window)
	if err != nil {
		return l.storeFailure(key, err)
	}
	return l.decide(c, l.policy.Max, key)
}

// Compensate undoes the request's accounting when the policy's skip flag
// matches the observed outcome class. Called after the response completes.
func (l *Limiter) Compensate(ctx context.Context, d Decision, statusCode int) {
	if !d.Allowed || !d.accounted {
		return
	}

	success := statusCode < 400
	if (success && l.policy.SkipSuccessful) || (!success && l.policy.SkipFailed) {
		if err := l.store.Decrement(ctx, d.Key); err != nil {
			slog.Warn("ratelimit: compensating decrement failed",
				"policy", l.policy.Name, "key", d.Key, "error", err)
		}
	}
}

// decide turns a counter state into a Decision against the given cap.
func (l *Limiter) decide(c Counter, limit int, key string) Decision {
	d := Decision{
		Allowed:   c.Count <= int64(limit),
		Limit:     limit,
		Remaining: int(max(0, int64(limit)-c.Count)),
		Count:     c.Count,
		WindowEnd: c.WindowEnd,
		Key:       key,
		Message:   l.policy.message(),
		accounted: true,
	}
	if !d.Allowed {
		d.RetryAfter = ceilSeconds(c.WindowEnd.Sub(l.clock()))
	}
	return d
}

// storeFailure applies the configured fail posture when the store is
// unreachable. The default denies: an unevaluated limit must not become
// unlimited traffic.
func (l *Limiter) storeFailure(key string, err error) Decision {
	slog.Error("ratelimit: counter store failure",
		"policy", l.policy.Name, "key", key, "fail_open", l.failOpen, "error", err)

	if l.failOpen {
		return Decision{
			Allowed:   true,
			Limit:     l.policy.Max,
			Remaining: l.policy.Max,
			WindowEnd: l.clock().Add(l.policy.Window),
			Key:       key,
			Message:   l.policy.message(),
		}
	}
	return Decision{
		Allowed:    false,
		Limit:      l.policy.Max,
		WindowEnd:  l.clock().Add(l.policy.Window),
		RetryAfter: ceilSeconds(l.policy.Window),
		Key:        key,
		Message:    l.policy.message(),
	}
}

// ceilSeconds rounds a duration up to whole seconds, minimum one.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return secs * time.Second
}
