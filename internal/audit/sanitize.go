// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package audit

import (
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// MaxCaptureBodyBytes is the largest request body that will be snapshotted.
const MaxCaptureBodyBytes = 1 << 20 // 1 MiB

// maxCapturedStringLen is the longest string value kept in a snapshot
// before truncation.
const maxCapturedStringLen = 500

// truncationMarker is appended to truncated string values.
const truncationMarker = "…"

// redactedBodyKeys are removed from captured request bodies.
// Matching is a case-sensitive exact match on the key name.
var redactedBodyKeys = map[string]struct{}{
	"password":    {},
	"token":       {},
	"secret":      {},
	"key":         {},
	"credit_card": {},
}

// redactedHeaders are dropped from captured headers (case-insensitive).
var redactedHeaders = []string{"Authorization", "Cookie", "X-Api-Key"}

// sensitivePathMarkers disable body capture entirely when present in the
// request path. Credentials must never reach the audit log, even redacted.
var sensitivePathMarkers = []string{"login", "register"}

// ShouldCaptureBody reports whether a request body is eligible for
// snapshotting. Sensitive endpoints, file uploads, and oversized bodies
// are skipped entirely.
func ShouldCaptureBody(path, contentType string, contentLength int64) bool {
	lower := strings.ToLower(path)
	for _, marker := range sensitivePathMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	if strings.HasPrefix(contentType, "multipart/form-data") ||
		strings.HasPrefix(contentType, "application/octet-stream") {
		return false
	}
	if contentLength > MaxCaptureBodyBytes {
		return false
	}
	return true
}

// SanitizeBody parses a JSON request body and returns a redacted copy:
// sensitive keys removed, long string values truncated. Returns nil for
// empty or non-JSON-object bodies.
func SanitizeBody(raw []byte) map[string]any {
	if len(raw) == 0 || len(raw) > MaxCaptureBodyBytes {
		return nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	sanitized, _ := sanitizeValue(body).(map[string]any)
	return sanitized
}

// sanitizeValue walks a decoded JSON value, dropping redacted keys and
// truncating long strings at any nesting depth.
func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if _, redacted := redactedBodyKeys[k]; redacted {
				continue
			}
			out[k] = sanitizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(inner)
		}
		return out
	case string:
		return truncateString(val)
	default:
		return v
	}
}

// SanitizeHeaders returns a flat copy of request headers with credential
// headers removed.
func SanitizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		if len(vals) == 0 {
			continue
		}
		out[k] = vals[0]
	}
	for _, k := range redactedHeaders {
		delete(out, http.CanonicalHeaderKey(k))
	}
	return out
}

// SanitizeQuery flattens query parameters, truncating long values.
func SanitizeQuery(q url.Values) map[string]string {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]string, len(q))
	for k, vals := range q {
		if len(vals) == 0 {
			continue
		}
		out[k] = truncateString(vals[0])
	}
	return out
}

// truncateString caps a string at the snapshot length, backing up to the
// nearest rune boundary so the result stays valid UTF-8.
func truncateString(s string) string {
	if len(s) <= maxCapturedStringLen {
		return s
	}
	cut := maxCapturedStringLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
