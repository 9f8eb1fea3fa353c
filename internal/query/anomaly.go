// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package query

import (
	"sort"
	"strings"
	"time"

	"github.com/mileusna/useragent"
)

// Thresholds are the tunable anomaly-detection parameters.
type Thresholds struct {
	// FailedLogins flags an IP with at least this many failed
	// authentication events in the window.
	FailedLogins int
	// HighFrequency flags an IP with at least this many total events
	// in the window.
	HighFrequency int
	// BotMarkers are lowercase substrings matched against user agents,
	// in addition to structural bot detection.
	BotMarkers []string
}

// DefaultThresholds returns the standard anomaly thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FailedLogins:  5,
		HighFrequency: 1000,
		BotMarkers:    []string{"bot", "crawler", "spider", "scraper", "curl", "wget", "python-requests"},
	}
}

// IPAnomaly is one flagged IP with its observed event count.
type IPAnomaly struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

// AnomalyReport is the result of a detection pass, surfaced for
// security review.
type AnomalyReport struct {
	WindowMs             int64       `json:"window_ms"`
	FailedLoginIPs       []IPAnomaly `json:"failed_login_ips"`
	HighFrequencyIPs     []IPAnomaly `json:"high_frequency_ips"`
	SuspiciousUserAgents []string    `json:"suspicious_user_agents"`
}

// DetectAnomalies scans the trailing window for failed-login bursts,
// high-frequency IPs, and bot-like user agents.
func (e *Engine) DetectAnomalies(window time.Duration, t Thresholds) AnomalyReport {
	events := e.windowed(window)

	failedLogins := make(map[string]int)
	totals := make(map[string]int)
	suspiciousUAs := make(map[string]struct{})

	for i := range events {
		ev := &events[i]
		ip := ev.Network.IP
		totals[ip]++

		if strings.HasPrefix(ev.Action, "auth.") && ev.Failed() {
			failedLogins[ip]++
		}

		if ua := ev.Network.UserAgent; ua != "" {
			if isSuspiciousUserAgent(ua, t.BotMarkers) {
				suspiciousUAs[ua] = struct{}{}
			}
		}
	}

	report := AnomalyReport{WindowMs: window.Milliseconds()}
	for ip, count := range failedLogins {
		if count >= t.FailedLogins {
			report.FailedLoginIPs = append(report.FailedLoginIPs, IPAnomaly{IP: ip, Count: count})
		}
	}
	for ip, count := range totals {
		if count >= t.HighFrequency {
			report.HighFrequencyIPs = append(report.HighFrequencyIPs, IPAnomaly{IP: ip, Count: count})
		}
	}
	for ua := range suspiciousUAs {
		report.SuspiciousUserAgents = append(report.SuspiciousUserAgents, ua)
	}

	sortAnomalies(report.FailedLoginIPs)
	sortAnomalies(report.HighFrequencyIPs)
	sort.Strings(report.SuspiciousUserAgents)
	return report
}

// isSuspiciousUserAgent combines structural UA parsing with the
// configured marker substrings.
func isSuspiciousUserAgent(ua string, markers []string) bool {
	if useragent.Parse(ua).Bot {
		return true
	}
	lower := strings.ToLower(ua)
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// sortAnomalies orders flagged IPs by count descending, then by IP for
// a deterministic report.
func sortAnomalies(list []IPAnomaly) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].IP < list[j].IP
	})
}
