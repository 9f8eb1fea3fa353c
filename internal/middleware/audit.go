// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/warden-go/internal/audit"
	"github.com/olegiv/warden-go/internal/util"
)

// abortedStatusCode is recorded for requests whose client went away
// before a response was written (nginx convention).
const abortedStatusCode = 499

// CountryResolver maps an IP address to a country code. Empty string
// means unknown. *geoip.Lookup satisfies it.
type CountryResolver interface {
	Country(ip string) string
}

// Interceptor captures every request/response pair into the audit log.
// An event is appended when the request enters the pipeline and finalized
// exactly once when the response completes, whichever completion path
// fires first.
type Interceptor struct {
	log       *audit.Log
	geo       CountryResolver
	apiPrefix string
	clock     func() time.Time
}

// InterceptorOptions configures the audit interceptor.
type InterceptorOptions struct {
	// Geo optionally enriches events with a country code.
	Geo CountryResolver
	// APIPrefix is the fixed first path segment of API routes used for
	// resource inference (default "api").
	APIPrefix string
	// Clock overrides the time source, used by tests.
	Clock func() time.Time
}

// NewInterceptor creates an audit interceptor writing to the given log.
func NewInterceptor(log *audit.Log, opts InterceptorOptions) *Interceptor {
	i := &Interceptor{
		log:       log,
		geo:       opts.Geo,
		apiPrefix: opts.APIPrefix,
		clock:     opts.Clock,
	}
	if i.apiPrefix == "" {
		i.apiPrefix = "api"
	}
	if i.clock == nil {
		i.clock = time.Now
	}
	return i
}

// Middleware returns the capturing middleware. Capture failures are
// swallowed with a warning: observability must never take down the
// serving path.
func (i *Interceptor) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := i.clock()
			id := i.capture(r, start)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			var once sync.Once
			finalize := func(status int) {
				once.Do(func() {
					i.finalize(r, id, start, status)
				})
			}

			defer func() {
				if rec := recover(); rec != nil {
					finalize(http.StatusInternalServerError)
					panic(rec)
				}

				status := ww.Status()
				switch {
				case status == 0 && r.Context().Err() != nil:
					// Client went away before anything was written.
					finalize(abortedStatusCode)
				case status == 0:
					// Handler wrote nothing; net/http sends 200.
					finalize(http.StatusOK)
				default:
					finalize(status)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// capture builds and appends the in-flight event, returning its id.
func (i *Interceptor) capture(r *http.Request, start time.Time) (id string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("audit: request capture failed", "panic", rec, "path", r.URL.Path)
			id = ""
		}
	}()

	ip := util.ClientIP(r)
	network := audit.Network{
		IP:        ip,
		UserAgent: r.UserAgent(),
	}
	if i.geo != nil {
		network.Country = i.geo.Country(ip)
	}

	resource := i.inferResource(r.URL.Path)
	return i.log.Append(audit.Event{
		Timestamp: start,
		Actor:     audit.ActorFromContext(r.Context()),
		Action:    inferAction(r, resource),
		Resource:  resource,
		Network:   network,
		Request:   i.snapshotRequest(r),
	})
}

// finalize freezes the event with its outcome. ResourceID is resolved
// here because chi fills URL params only once routing has happened.
func (i *Interceptor) finalize(r *http.Request, id string, start time.Time, status int) {
	if id == "" {
		return
	}

	// The resource id comes from route parameters, which only exist once
	// routing has happened; the event is still mutable at this point.
	i.log.SetResourceID(id, resourceIDFromRoute(r))

	outcome := audit.Outcome{
		StatusCode: status,
		DurationMs: i.clock().Sub(start).Milliseconds(),
	}
	if status >= 400 {
		outcome.ErrorSummary = statusSummary(status)
	}

	i.log.Update(id, outcome)
}

// snapshotRequest captures sanitized query, headers, and (when eligible)
// body into the event. The body is restored so downstream handlers can
// still read it.
func (i *Interceptor) snapshotRequest(r *http.Request) map[string]any {
	snapshot := make(map[string]any, 4)

	if q := audit.SanitizeQuery(r.URL.Query()); q != nil {
		snapshot["query"] = q
	}
	snapshot["headers"] = audit.SanitizeHeaders(r.Header)

	if r.Body != nil && bodyMethod(r.Method) &&
		audit.ShouldCaptureBody(r.URL.Path, r.Header.Get("Content-Type"), r.ContentLength) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, audit.MaxCaptureBodyBytes+1))
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(raw))
			if len(raw) <= audit.MaxCaptureBodyBytes {
				if body := audit.SanitizeBody(raw); body != nil {
					snapshot["body"] = body
				}
			}
		}
	}

	return snapshot
}

// inferResource derives the logical resource from the request path:
// the segment after the API prefix (skipping a version segment),
// else "unknown".
func (i *Interceptor) inferResource(path string) string {
	segments := splitPath(path)
	if len(segments) >= 2 && segments[0] == i.apiPrefix {
		rest := segments[1:]
		if len(rest) >= 2 && isVersionSegment(rest[0]) {
			rest = rest[1:]
		}
		return rest[0]
	}
	return "unknown"
}

// inferAction derives a category tag from the method and path.
func inferAction(r *http.Request, resource string) string {
	lower := strings.ToLower(r.URL.Path)
	switch {
	case strings.Contains(lower, "login"):
		return "auth.login"
	case strings.Contains(lower, "logout"):
		return "auth.logout"
	case strings.Contains(lower, "register"):
		return "auth.register"
	}

	switch r.Method {
	case http.MethodPost:
		return resource + ".create"
	case http.MethodPut, http.MethodPatch:
		return resource + ".update"
	case http.MethodDelete:
		return resource + ".delete"
	default:
		return resource + ".read"
	}
}

// resourceIDFromRoute reads the id (or slug) URL parameter once chi has
// routed the request.
func resourceIDFromRoute(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if id := rctx.URLParam("id"); id != "" {
			return id
		}
		return rctx.URLParam("slug")
	}
	return ""
}

// statusSummary returns the standard status text, falling back to the
// bare code family for non-standard statuses (e.g. 499).
func statusSummary(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	if status == abortedStatusCode {
		return "Client Closed Request"
	}
	return "Error"
}

// bodyMethod reports whether the method conventionally carries a body.
func bodyMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// splitPath returns non-empty path segments.
func splitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isVersionSegment matches API version segments like v1, v2.
func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
