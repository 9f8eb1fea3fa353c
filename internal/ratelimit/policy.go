// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ratelimit

import (
	"fmt"
	"time"
)

// Policy configures one named rate limit.
type Policy struct {
	// Name identifies the policy and namespaces its counter keys.
	Name string

	// Window is the duration of one counting window.
	Window time.Duration

	// Max is the number of requests allowed per window. A request whose
	// post-increment count exceeds Max is denied.
	Max int

	// Message is the human-readable denial message.
	Message string

	// SkipSuccessful compensates the increment after a 2xx/3xx response,
	// so only failures count toward the limit (typical for login).
	SkipSuccessful bool

	// SkipFailed compensates the increment after a >=400 response,
	// so only successes count toward the limit.
	SkipFailed bool

	// KeyFunc derives the client identity the limit is scoped to.
	// Defaults to IPKey.
	KeyFunc KeyFunc

	// BurstWindow and BurstMax enable the burst variant: a secondary
	// short window that absorbs brief spikes without consuming
	// sustained-window budget. Zero values disable it.
	BurstWindow time.Duration
	BurstMax    int
}

// Validate checks policy parameters. Invalid parameters are a
// configuration fault and must be fatal at startup, never at request time.
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("ratelimit: policy has no name")
	}
	if p.Window <= 0 {
		return fmt.Errorf("ratelimit: policy %q: window must be positive, got %s", p.Name, p.Window)
	}
	if p.Max <= 0 {
		return fmt.Errorf("ratelimit: policy %q: max must be positive, got %d", p.Name, p.Max)
	}
	if (p.BurstWindow > 0) != (p.BurstMax > 0) {
		return fmt.Errorf("ratelimit: policy %q: burst window and burst max must be set together", p.Name)
	}
	if p.BurstWindow > 0 && p.BurstWindow >= p.Window {
		return fmt.Errorf("ratelimit: policy %q: burst window %s must be shorter than window %s",
			p.Name, p.BurstWindow, p.Window)
	}
	return nil
}

// message returns the denial message, falling back to a generic one.
func (p Policy) message() string {
	if p.Message != "" {
		return p.Message
	}
	return "Too many requests, please try again later."
}

// keyFunc returns the configured key generator or the IP default.
func (p Policy) keyFunc() KeyFunc {
	if p.KeyFunc != nil {
		return p.KeyFunc
	}
	return IPKey()
}
