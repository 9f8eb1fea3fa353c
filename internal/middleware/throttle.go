// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/olegiv/warden-go/internal/util"
)

// throttleCacheMax bounds the per-IP limiter cache before it is cleared.
const throttleCacheMax = 10000

// limiterCache is a generic token-bucket cache with double-check locking.
type limiterCache[K comparable] struct {
	limiters map[K]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// newLimiterCache creates a new limiter cache.
func newLimiterCache[K comparable](rps float64, burst int) *limiterCache[K] {
	return &limiterCache[K]{
		limiters: make(map[K]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// get returns the rate limiter for a specific key, creating one if needed.
func (lc *limiterCache[K]) get(key K) *rate.Limiter {
	lc.mu.RLock()
	limiter, exists := lc.limiters[key]
	lc.mu.RUnlock()

	if exists {
		return limiter
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = lc.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(lc.rate, lc.burst)
	lc.limiters[key] = limiter
	return limiter
}

// clearIfExceeds clears all entries if the cache exceeds maxSize.
// Returns true if the cache was cleared.
func (lc *limiterCache[K]) clearIfExceeds(maxSize int) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if len(lc.limiters) > maxSize {
		lc.limiters = make(map[K]*rate.Limiter)
		return true
	}
	return false
}

// Throttle is a transport-level token-bucket backstop applied per client
// IP, in front of the windowed policy limiters. It smooths abusive
// request streams that would otherwise burn through window budgets in
// one gulp; the policy limiters remain the authoritative quota.
func Throttle(rps float64, burst int) func(http.Handler) http.Handler {
	cache := newLimiterCache[string](rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := util.ClientIP(r)
			if !cache.get(ip).Allow() {
				slog.Warn("throttle: request rejected", "ip", ip, "path", r.URL.Path)
				WriteAPIError(w, http.StatusTooManyRequests,
					CodeRateLimitExceeded, "Too many requests. Please slow down.")
				return
			}

			if cache.clearIfExceeds(throttleCacheMax) {
				slog.Info("throttle: cleared limiter cache due to size")
			}

			next.ServeHTTP(w, r)
		})
	}
}
