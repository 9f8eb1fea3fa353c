// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"net"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "forwarded-for single",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "forwarded-for chain takes first",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 198.51.100.2, 10.0.0.1"},
			want:       "203.0.113.9",
		},
		{
			name:       "real-ip fallback",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7"},
			want:       "198.51.100.7",
		},
		{
			name:       "remote addr strips port",
			remoteAddr: "192.0.2.4:5678",
			want:       "192.0.2.4",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.4",
			want:       "192.0.2.4",
		},
		{
			name: "nothing available",
			want: UnknownIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"192.168.1.10", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"fe80::1", true},
		{"fc00::1", true},
		{"::1", true},
		{"8.8.8.8", false},
		{"203.0.113.9", false},
		{"2001:4860:4860::8888", false},
	}

	for _, tt := range tests {
		if got := IsPrivateIP(net.ParseIP(tt.ip)); got != tt.private {
			t.Errorf("IsPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}

	if !IsPrivateIP(nil) {
		t.Error("IsPrivateIP(nil) should be true")
	}
}
