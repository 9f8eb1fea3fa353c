// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/olegiv/warden-go/internal/query"
)

// defaultStatsWindow is the trailing window used when none is requested.
const defaultStatsWindow = time.Hour

// maxStatsWindow caps the requested trailing window.
const maxStatsWindow = 7 * 24 * time.Hour

// ListEvents returns audit events matching the query parameters, newest
// first, paginated.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts, err := parseQueryOptions(r)
	if err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	result := h.engine.Query(opts)
	WriteSuccess(w, result.Data, &Meta{
		Total:  result.Total,
		Offset: result.Offset,
		Limit:  result.Limit,
	})
}

// EventStats returns aggregate statistics over the trailing window.
func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}
	WriteSuccess(w, h.engine.Statistics(window), nil)
}

// EventAnomalies returns the anomaly report over the trailing window.
func (h *Handler) EventAnomalies(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}
	WriteSuccess(w, h.engine.DetectAnomalies(window, h.thresholds), nil)
}

// ExportEvents streams the filtered events in the requested format.
func (h *Handler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	format, err := query.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	opts, err := parseQueryOptions(r)
	if err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	// Export ignores pagination: the caller gets the full filtered set.
	events := h.engine.Collect(opts.Filters)
	payload, err := h.engine.Export(events, format)
	if err != nil {
		WriteInternalError(w, "Failed to serialize export")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="events.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// parseQueryOptions translates URL query parameters into engine options.
func parseQueryOptions(r *http.Request) (query.Options, error) {
	q := r.URL.Query()
	var opts query.Options

	equalsParams := map[string]query.Field{
		"actor_id":    query.FieldActorID,
		"action":      query.FieldAction,
		"resource":    query.FieldResource,
		"resource_id": query.FieldResourceID,
		"ip":          query.FieldIP,
	}
	for param, field := range equalsParams {
		if v := q.Get(param); v != "" {
			opts.Filters = append(opts.Filters, query.Filter{
				Field: field, Op: query.OpEquals, Value: v,
			})
		}
	}

	timeParams := map[string]query.Op{
		"since":  query.OpSince,
		"before": query.OpBefore,
	}
	for param, op := range timeParams {
		v := q.Get(param)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return query.Options{}, &paramError{param, "must be an RFC 3339 timestamp"}
		}
		opts.Filters = append(opts.Filters, query.Filter{
			Field: query.FieldTimestamp, Op: op, Time: ts,
		})
	}

	var ok bool
	if opts.Offset, ok = parseIntParam(q.Get("offset")); !ok {
		return query.Options{}, &paramError{"offset", "must be a non-negative integer"}
	}
	if opts.Limit, ok = parseIntParam(q.Get("limit")); !ok {
		return query.Options{}, &paramError{"limit", "must be a non-negative integer"}
	}

	for _, f := range opts.Filters {
		if err := f.Validate(); err != nil {
			return query.Options{}, err
		}
	}
	return opts, nil
}

// parseWindow reads the trailing-window duration parameter.
func parseWindow(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return defaultStatsWindow, nil
	}
	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 {
		return 0, &paramError{"window", "must be a positive duration, e.g. 15m or 1h"}
	}
	if window > maxStatsWindow {
		window = maxStatsWindow
	}
	return window, nil
}

// parseIntParam parses a non-negative integer parameter; empty means zero.
func parseIntParam(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// paramError reports an invalid query parameter.
type paramError struct {
	param  string
	reason string
}

func (e *paramError) Error() string {
	return "invalid parameter " + e.param + ": " + e.reason
}
