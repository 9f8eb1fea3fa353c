// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"

	"github.com/olegiv/warden-go/internal/audit"
)

// Identity headers set by the host environment after it has resolved
// authentication. Warden consumes the resolved identity; it never
// performs authentication itself.
const (
	HeaderUserID   = "X-Warden-User-Id"
	HeaderUserRole = "X-Warden-User-Role"
)

// Identity reads the host-resolved actor headers into the request
// context, where the audit interceptor and identity-scoped rate-limit
// keys pick it up. Requests without the headers stay unauthenticated.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(HeaderUserID)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := audit.WithActor(r.Context(), audit.Actor{
				UserID: userID,
				Role:   r.Header.Get(HeaderUserRole),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
