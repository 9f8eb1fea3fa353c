// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/olegiv/warden-go/internal/audit"
)

// Format selects an export serialization.
type Format string

// Supported export formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("query: unsupported export format %q", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// csvColumns is the fixed CSV column order.
var csvColumns = []string{
	"id", "timestamp", "actor_id", "actor_role", "action", "resource",
	"resource_id", "ip", "user_agent", "country", "status_code",
	"duration_ms", "error_summary",
}

// Export serializes events in the requested format. Filters are applied
// by the caller beforehand via Query.
func (e *Engine) Export(events []audit.Event, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return exportCSV(events), nil
	default:
		return json.Marshal(events)
	}
}

// exportCSV renders one header line plus one line per event. Values are
// quoted when they contain delimiters; no escaping beyond quote doubling
// is attempted for free-text fields.
func exportCSV(events []audit.Event) []byte {
	var sb strings.Builder
	sb.WriteString(strings.Join(csvColumns, ","))
	sb.WriteByte('\n')

	for i := range events {
		ev := &events[i]

		var actorID, actorRole string
		if ev.Actor != nil {
			actorID = ev.Actor.UserID
			actorRole = ev.Actor.Role
		}
		var status, duration, errSummary string
		if ev.Outcome != nil {
			status = strconv.Itoa(ev.Outcome.StatusCode)
			duration = strconv.FormatInt(ev.Outcome.DurationMs, 10)
			errSummary = ev.Outcome.ErrorSummary
		}

		fields := []string{
			ev.ID,
			ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
			actorID,
			actorRole,
			ev.Action,
			ev.Resource,
			ev.ResourceID,
			ev.Network.IP,
			ev.Network.UserAgent,
			ev.Network.Country,
			status,
			duration,
			errSummary,
		}
		for j, f := range fields {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(csvQuote(f))
		}
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// csvQuote applies simple quoting: values containing a comma, quote, or
// newline are wrapped in quotes with inner quotes doubled. Newlines are
// flattened so every event stays on one line.
func csvQuote(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	s = strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
