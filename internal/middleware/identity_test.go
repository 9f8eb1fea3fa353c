// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/olegiv/warden-go/internal/audit"
)

func TestIdentity_ResolvesActor(t *testing.T) {
	var actor *audit.Actor
	handler := Identity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = audit.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderUserID, "u42")
	req.Header.Set(HeaderUserRole, "admin")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if actor == nil {
		t.Fatal("expected actor in context")
	}
	if actor.UserID != "u42" || actor.Role != "admin" {
		t.Errorf("unexpected actor: %+v", actor)
	}
}

func TestIdentity_AnonymousWithoutHeader(t *testing.T) {
	var actor *audit.Actor
	handler := Identity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = audit.ActorFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if actor != nil {
		t.Errorf("expected no actor for anonymous request, got %+v", actor)
	}
}
