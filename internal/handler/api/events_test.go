// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/olegiv/warden-go/internal/audit"
	"github.com/olegiv/warden-go/internal/query"
)

func listResponse(t *testing.T, rec *httptest.ResponseRecorder) ([]audit.Event, Meta) {
	t.Helper()
	var resp struct {
		Data []audit.Event `json:"data"`
		Meta Meta          `json:"meta"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return resp.Data, resp.Meta
}

func TestListEvents_DefaultPagination(t *testing.T) {
	events := make([]audit.Event, 0, 150)
	for i := 0; i < 150; i++ {
		events = append(events, testEvent(
			"", "u1", "pages.read", "1.2.3.4",
			testBase.Add(time.Duration(i)*time.Second), 200))
	}
	h, _ := newTestHandler(t, events)

	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest("GET", "/api/v1/events", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, meta := listResponse(t, rec)
	if len(data) != query.DefaultLimit {
		t.Errorf("expected default page of %d, got %d", query.DefaultLimit, len(data))
	}
	if meta.Total != 150 {
		t.Errorf("total = %d, want 150", meta.Total)
	}
	// Newest first.
	if len(data) > 1 && data[0].Timestamp.Before(data[1].Timestamp) {
		t.Error("events must be sorted newest first")
	}
}

func TestListEvents_Filters(t *testing.T) {
	h, _ := newTestHandler(t, []audit.Event{
		testEvent("e1", "u1", "pages.read", "1.2.3.4", testBase, 200),
		testEvent("e2", "u2", "pages.create", "5.6.7.8", testBase.Add(time.Second), 201),
		testEvent("e3", "u1", "pages.delete", "1.2.3.4", testBase.Add(2*time.Second), 204),
	})

	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest("GET", "/api/v1/events?actor_id=u1&ip=1.2.3.4", nil))

	data, meta := listResponse(t, rec)
	if meta.Total != 2 {
		t.Fatalf("total = %d, want 2", meta.Total)
	}
	for _, e := range data {
		if e.Actor == nil || e.Actor.UserID != "u1" {
			t.Errorf("filter leaked event %q", e.ID)
		}
	}
}

func TestListEvents_TimeRange(t *testing.T) {
	h, _ := newTestHandler(t, []audit.Event{
		testEvent("old", "u1", "pages.read", "1.2.3.4", testBase.Add(-time.Hour), 200),
		testEvent("new", "u1", "pages.read", "1.2.3.4", testBase, 200),
	})

	since := testBase.Add(-time.Minute).Format(time.RFC3339)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest("GET", "/api/v1/events?since="+since, nil))

	data, _ := listResponse(t, rec)
	if len(data) != 1 || data[0].ID != "new" {
		t.Errorf("expected only the recent event, got %d", len(data))
	}
}

func TestListEvents_BadParams(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	for _, target := range []string{
		"/api/v1/events?since=yesterday",
		"/api/v1/events?offset=-1",
		"/api/v1/events?limit=abc",
	} {
		rec := httptest.NewRecorder()
		h.ListEvents(rec, httptest.NewRequest("GET", target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestEventStats(t *testing.T) {
	h, _ := newTestHandler(t, []audit.Event{
		testEvent("e1", "u1", "pages.read", "1.2.3.4", testBase, 200),
		testEvent("e2", "u1", "pages.read", "1.2.3.4", testBase, 500),
	})

	rec := httptest.NewRecorder()
	h.EventStats(rec, httptest.NewRequest("GET", "/api/v1/events/stats?window=1h", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data query.Statistics `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if resp.Data.Total != 2 || resp.Data.Success != 1 || resp.Data.Errors != 1 {
		t.Errorf("unexpected stats: %+v", resp.Data)
	}
}

func TestEventStats_BadWindow(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.EventStats(rec, httptest.NewRequest("GET", "/api/v1/events/stats?window=soon", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestEventAnomalies(t *testing.T) {
	events := make([]audit.Event, 0, 6)
	for i := 0; i < 6; i++ {
		e := testEvent("", "", "auth.login", "9.9.9.9", testBase, 401)
		events = append(events, e)
	}
	h, _ := newTestHandler(t, events)

	rec := httptest.NewRecorder()
	h.EventAnomalies(rec, httptest.NewRequest("GET", "/api/v1/events/anomalies", nil))

	var resp struct {
		Data query.AnomalyReport `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(resp.Data.FailedLoginIPs) != 1 || resp.Data.FailedLoginIPs[0].IP != "9.9.9.9" {
		t.Errorf("expected failed-login anomaly for 9.9.9.9, got %+v", resp.Data.FailedLoginIPs)
	}
}

func TestExportEvents_CSV(t *testing.T) {
	h, _ := newTestHandler(t, []audit.Event{
		testEvent("e1", "u1", "pages.read", "1.2.3.4", testBase, 200),
	})

	rec := httptest.NewRecorder()
	h.ExportEvents(rec, httptest.NewRequest("GET", "/api/v1/events/export?format=csv", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q, want text/csv", ct)
	}
	body := rec.Body.String()
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,timestamp,") {
		t.Errorf("unexpected CSV header %q", lines[0])
	}
	if !strings.Contains(lines[1], "e1") {
		t.Errorf("row missing event id: %q", lines[1])
	}
}

func TestExportEvents_JSONDefault(t *testing.T) {
	h, _ := newTestHandler(t, []audit.Event{
		testEvent("e1", "u1", "pages.read", "1.2.3.4", testBase, 200),
	})

	rec := httptest.NewRecorder()
	h.ExportEvents(rec, httptest.NewRequest("GET", "/api/v1/events/export", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}
	var events []audit.Event
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("decoding export: %v", err)
	}
	if len(events) != 1 || events[0].ID != "e1" {
		t.Errorf("unexpected export payload: %+v", events)
	}
}

func TestExportEvents_FullLogBeyondPageCap(t *testing.T) {
	events := make([]audit.Event, 0, query.MaxLimit+100)
	for i := 0; i < query.MaxLimit+100; i++ {
		events = append(events, testEvent(
			"", "u1", "pages.read", "1.2.3.4",
			testBase.Add(time.Duration(i)*time.Second), 200))
	}
	h, _ := newTestHandler(t, events)

	rec := httptest.NewRecorder()
	h.ExportEvents(rec, httptest.NewRequest("GET", "/api/v1/events/export", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var exported []audit.Event
	if err := json.NewDecoder(rec.Body).Decode(&exported); err != nil {
		t.Fatalf("decoding export: %v", err)
	}
	if len(exported) != query.MaxLimit+100 {
		t.Errorf("export must cover the full log, got %d of %d events",
			len(exported), query.MaxLimit+100)
	}
}

func TestExportEvents_BadFormat(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.ExportEvents(rec, httptest.NewRequest("GET", "/api/v1/events/export?format=xml", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
