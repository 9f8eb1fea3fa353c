// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"net/http"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/warden-go/internal/ratelimit"
)

// Rate-limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// CodeRateLimitExceeded is the machine-readable denial code.
const CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

// RateLimit enforces one limiter on the wrapped routes. Denials
// short-circuit with 429 and a structured body; allowed requests carry
// the limit headers and are compensated after completion when the
// policy's skip flags apply.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			d := limiter.Allow(ctx, r)

			// Reset is epoch milliseconds, consistent across the service.
			w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
			w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
			w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(d.WindowEnd.UnixMilli(), 10))

			if !d.Allowed {
				retrySecs := int64(d.RetryAfter.Seconds())
				w.Header().Set(HeaderRetryAfter, strconv.FormatInt(retrySecs, 10))
				WriteAPIErrorRetry(w, http.StatusTooManyRequests,
					CodeRateLimitExceeded, d.Message, retrySecs)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			// The request context may already be cancelled once the
			// response is done; compensation must still reach the store.
			limiter.Compensate(context.WithoutCancel(ctx), d, status)
		})
	}
}
