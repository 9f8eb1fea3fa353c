// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package util provides small shared helpers for network and request handling.
package util

import (
	"net"
	"net/http"
	"strings"
)

// UnknownIP is the sentinel returned when no client address can be determined.
const UnknownIP = "unknown"

// privateIPBlocks contains CIDR ranges for private/reserved IP addresses
// per RFC 1918, RFC 4193, RFC 3927, and RFC 5737.
var privateIPBlocks []*net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",     // RFC 1918 - private
		"172.16.0.0/12",  // RFC 1918 - private
		"192.168.0.0/16", // RFC 1918 - private
		"127.0.0.0/8",    // RFC 1122 - loopback
		"169.254.0.0/16", // RFC 3927 - link-local
		"100.64.0.0/10",  // RFC 6598 - shared address (CGNAT)
		"::1/128",        // IPv6 loopback
		"fe80::/10",      // IPv6 link-local
		"fc00::/7",       // RFC 4193 - IPv6 unique local
	}
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil {
			privateIPBlocks = append(privateIPBlocks, block)
		}
	}
}

// IsPrivateIP checks if an IP address falls within a private or reserved range.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true // Treat nil IP as private (deny by default)
	}
	for _, block := range privateIPBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP extracts the client IP address from the request.
// Order: first entry of X-Forwarded-For (set by reverse proxies),
// then X-Real-IP, then the transport-level peer address.
// Returns UnknownIP when nothing usable is present.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs; take the first one
		first := xff
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}

	return UnknownIP
}
