// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package query

import (
	"sort"
	"time"
)

// topActorCount is how many actors the statistics report.
const topActorCount = 10

// ActorCount is one entry of the top-actors ranking.
type ActorCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// DurationPercentiles summarizes the completed-request latency distribution.
type DurationPercentiles struct {
	P50 int64 `json:"p50_ms"`
	P95 int64 `json:"p95_ms"`
	P99 int64 `json:"p99_ms"`
}

// Statistics summarizes the trailing window of the audit log.
// Only completed events contribute to outcome-derived figures; in-flight
// requests are reported separately and never counted as completed.
type Statistics struct {
	WindowMs    int64          `json:"window_ms"`
	Total       int            `json:"total"`
	InFlight    int            `json:"in_flight"`
	ByAction    map[string]int `json:"by_action"`
	ByResource  map[string]int `json:"by_resource"`
	Success     int            `json:"success"`
	Errors      int            `json:"errors"`
	AvgDuration float64        `json:"avg_duration_ms"`
	Percentiles DurationPercentiles `json:"duration_percentiles"`
	TopActors   []ActorCount   `json:"top_actors"`
}

// Statistics computes aggregate counts over events within the trailing window.
func (e *Engine) Statistics(window time.Duration) Statistics {
	events := e.windowed(window)

	stats := Statistics{
		WindowMs:   window.Milliseconds(),
		Total:      len(events),
		ByAction:   make(map[string]int),
		ByResource: make(map[string]int),
	}

	var (
		durations   []int64
		durationSum int64
		actorCounts = make(map[string]int)
		actorOrder  []string
	)

	for i := range events {
		ev := &events[i]
		stats.ByAction[ev.Action]++
		stats.ByResource[ev.Resource]++

		if id := ev.ActorID(); id != "" {
			if _, seen := actorCounts[id]; !seen {
				actorOrder = append(actorOrder, id)
			}
			actorCounts[id]++
		}

		if !ev.Completed() {
			stats.InFlight++
			continue
		}
		if ev.Failed() {
			stats.Errors++
		} else {
			stats.Success++
		}
		durations = append(durations, ev.Outcome.DurationMs)
		durationSum += ev.Outcome.DurationMs
	}

	if len(durations) > 0 {
		stats.AvgDuration = float64(durationSum) / float64(len(durations))
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		stats.Percentiles = DurationPercentiles{
			P50: percentile(durations, 50),
			P95: percentile(durations, 95),
			P99: percentile(durations, 99),
		}
	}

	stats.TopActors = topActors(actorCounts, actorOrder)
	return stats
}

// percentile returns the nearest-rank percentile of sorted values.
func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100 // ceil(p/100 * n)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// topActors ranks actors by event count, ties broken by first-seen order.
func topActors(counts map[string]int, firstSeen []string) []ActorCount {
	ranked := make([]ActorCount, 0, len(firstSeen))
	for _, id := range firstSeen {
		ranked = append(ranked, ActorCount{UserID: id, Count: counts[id]})
	}

	// Stable sort preserves first-seen order among equal counts.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	if len(ranked) > topActorCount {
		ranked = ranked[:topActorCount]
	}
	return ranked
}
