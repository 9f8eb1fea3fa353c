// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// LimitState describes the live counter behind one rate-limit key.
type LimitState struct {
	Key       string `json:"key"`
	Count     int64  `json:"count"`
	WindowEnd int64  `json:"window_end_ms"`
}

// GetLimit returns the current counter state for a key without touching
// its count.
func (h *Handler) GetLimit(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		WriteBadRequest(w, "Missing limit key", nil)
		return
	}

	c, ok, err := h.store.Peek(r.Context(), key)
	if err != nil {
		WriteInternalError(w, "Failed to read counter")
		return
	}
	if !ok {
		WriteNotFound(w, "No active window for key")
		return
	}

	WriteSuccess(w, LimitState{
		Key:       key,
		Count:     c.Count,
		WindowEnd: c.WindowEnd.UnixMilli(),
	}, nil)
}

// ResetLimit deletes the counter behind a key, immediately unblocking
// the client it identifies.
func (h *Handler) ResetLimit(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		WriteBadRequest(w, "Missing limit key", nil)
		return
	}

	if err := h.store.Delete(r.Context(), key); err != nil {
		WriteInternalError(w, "Failed to reset counter")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
