// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ratelimit

import (
	"net/http"
	"strings"

	"github.com/olegiv/warden-go/internal/audit"
	"github.com/olegiv/warden-go/internal/util"
)

// KeyFunc derives the counter key a request's accounting is scoped to.
type KeyFunc func(r *http.Request) string

// IPKey scopes limits to the client IP: the first entry of the
// forwarded-for header, else the transport-level peer address,
// else the "unknown" sentinel. This is the default key generator.
func IPKey() KeyFunc {
	return util.ClientIP
}

// UserKey scopes limits to the authenticated user ("user:<id>"),
// falling back to the client IP for unauthenticated requests.
func UserKey() KeyFunc {
	return func(r *http.Request) string {
		if actor := audit.ActorFromContext(r.Context()); actor != nil && actor.UserID != "" {
			return "user:" + actor.UserID
		}
		return util.ClientIP(r)
	}
}

// RoleKey scopes limits per role and IP ("role:<role>:<ip>"), so one
// noisy admin cannot exhaust the budget of every admin.
func RoleKey() KeyFunc {
	return func(r *http.Request) string {
		ip := util.ClientIP(r)
		if actor := audit.ActorFromContext(r.Context()); actor != nil && actor.Role != "" {
			return "role:" + actor.Role + ":" + ip
		}
		return ip
	}
}

// APIKeyKey scopes limits to the presented API key ("apikey:<key>"),
// falling back to the client IP when no key is presented.
func APIKeyKey() KeyFunc {
	return func(r *http.Request) string {
		if key := bearerToken(r); key != "" {
			return "apikey:" + key
		}
		if key := r.Header.Get("X-API-Key"); key != "" {
			return "apikey:" + key
		}
		return util.ClientIP(r)
	}
}

// bearerToken extracts the token from a Bearer Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
