// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package audit

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestShouldCaptureBody(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		contentType   string
		contentLength int64
		want          bool
	}{
		{"normal json", "/api/pages", "application/json", 256, true},
		{"login path", "/api/auth/login", "application/json", 256, false},
		{"register path", "/register", "application/json", 256, false},
		{"login uppercase", "/api/auth/LOGIN", "application/json", 256, false},
		{"multipart upload", "/api/media", "multipart/form-data; boundary=x", 256, false},
		{"octet stream", "/api/media", "application/octet-stream", 256, false},
		{"oversized body", "/api/pages", "application/json", MaxCaptureBodyBytes + 1, false},
		{"exactly at limit", "/api/pages", "application/json", MaxCaptureBodyBytes, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldCaptureBody(tt.path, tt.contentType, tt.contentLength)
			if got != tt.want {
				t.Errorf("ShouldCaptureBody() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSanitizeBody_RedactsSensitiveKeys(t *testing.T) {
	body := SanitizeBody([]byte(`{"password":"x","note":"ok"}`))
	if body == nil {
		t.Fatal("expected sanitized body")
	}
	if _, ok := body["password"]; ok {
		t.Error("password must be removed")
	}
	if body["note"] != "ok" {
		t.Errorf("expected note to survive, got %v", body["note"])
	}
}

func TestSanitizeBody_RedactsNestedAndAllKeys(t *testing.T) {
	raw := `{
		"token": "t", "secret": "s", "key": "k", "credit_card": "c",
		"profile": {"password": "x", "name": "Ann"},
		"items": [{"secret": "x", "id": 1}]
	}`
	body := SanitizeBody([]byte(raw))
	if body == nil {
		t.Fatal("expected sanitized body")
	}
	for _, k := range []string{"token", "secret", "key", "credit_card"} {
		if _, ok := body[k]; ok {
			t.Errorf("key %q must be removed", k)
		}
	}

	profile := body["profile"].(map[string]any)
	if _, ok := profile["password"]; ok {
		t.Error("nested password must be removed")
	}
	if profile["name"] != "Ann" {
		t.Error("nested benign key must survive")
	}

	item := body["items"].([]any)[0].(map[string]any)
	if _, ok := item["secret"]; ok {
		t.Error("secret inside array element must be removed")
	}
}

func TestSanitizeBody_CaseSensitiveKeyMatch(t *testing.T) {
	body := SanitizeBody([]byte(`{"Password":"x","PASSWORD":"y"}`))
	// Redaction is a case-sensitive exact match; differently-cased keys pass.
	if len(body) != 2 {
		t.Errorf("expected differently-cased keys to survive, got %v", body)
	}
}

func TestSanitizeBody_TruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", 600)
	body := SanitizeBody([]byte(`{"note":"` + long + `"}`))
	got, _ := body["note"].(string)
	if !strings.HasSuffix(got, truncationMarker) {
		t.Error("expected truncation marker suffix")
	}
	if len(got) != maxCapturedStringLen+len(truncationMarker) {
		t.Errorf("expected %d chars plus marker, got %d", maxCapturedStringLen, len(got))
	}
}

func TestSanitizeBody_TruncatesAtRuneBoundary(t *testing.T) {
	// 3-byte runes; the byte cap falls mid-rune, so truncation must back
	// up to a boundary instead of emitting a split rune.
	long := strings.Repeat("€", 400)
	body := SanitizeBody([]byte(`{"note":"` + long + `"}`))
	got, _ := body["note"].(string)

	if !utf8.ValidString(got) {
		t.Error("truncated value must stay valid UTF-8")
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Error("expected truncation marker suffix")
	}
	trimmed := strings.TrimSuffix(got, truncationMarker)
	if len(trimmed) > maxCapturedStringLen {
		t.Errorf("truncated value is %d bytes, cap is %d", len(trimmed), maxCapturedStringLen)
	}
	if !strings.HasSuffix(trimmed, "€") {
		t.Errorf("expected a whole trailing rune, got %q", trimmed[len(trimmed)-3:])
	}
}

func TestSanitizeQuery_TruncatesAtRuneBoundary(t *testing.T) {
	q := url.Values{}
	q.Set("needle", strings.Repeat("é", 300))

	out := SanitizeQuery(q)
	if !utf8.ValidString(out["needle"]) {
		t.Error("truncated query value must stay valid UTF-8")
	}
	if !strings.HasSuffix(out["needle"], truncationMarker) {
		t.Error("expected truncation marker suffix")
	}
}

func TestSanitizeBody_NonJSON(t *testing.T) {
	if body := SanitizeBody([]byte("not json at all")); body != nil {
		t.Errorf("expected nil for non-JSON body, got %v", body)
	}
	if body := SanitizeBody(nil); body != nil {
		t.Errorf("expected nil for empty body, got %v", body)
	}
}

func TestSanitizeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	h.Set("Cookie", "session=xyz")
	h.Set("X-API-Key", "k123")
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", "test-agent")

	out := SanitizeHeaders(h)
	for _, k := range []string{"Authorization", "Cookie", "X-Api-Key"} {
		if _, ok := out[k]; ok {
			t.Errorf("header %q must be removed", k)
		}
	}
	if out["Content-Type"] != "application/json" {
		t.Error("benign headers must survive")
	}
}

func TestSanitizeQuery(t *testing.T) {
	q := url.Values{}
	q.Set("page", "2")
	q.Set("long", strings.Repeat("b", 600))

	out := SanitizeQuery(q)
	if out["page"] != "2" {
		t.Errorf("expected page=2, got %q", out["page"])
	}
	if !strings.HasSuffix(out["long"], truncationMarker) {
		t.Error("expected long query value to be truncated")
	}

	if out := SanitizeQuery(url.Values{}); out != nil {
		t.Error("expected nil for empty query")
	}
}
