// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the admin query API over the audit log and the
// rate-limit counter store.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/olegiv/warden-go/internal/query"
	"github.com/olegiv/warden-go/internal/ratelimit"
)

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	engine     *query.Engine
	store      ratelimit.Store
	thresholds query.Thresholds
}

// HandlerOptions configures the API handler.
type HandlerOptions struct {
	// Thresholds tunes anomaly detection; zero value uses the defaults.
	Thresholds query.Thresholds
}

// NewHandler creates a new API handler.
func NewHandler(engine *query.Engine, store ratelimit.Store, opts HandlerOptions) *Handler {
	h := &Handler{
		engine:     engine,
		store:      store,
		thresholds: opts.Thresholds,
	}
	if h.thresholds.FailedLogins == 0 && h.thresholds.HighFrequency == 0 {
		h.thresholds = query.DefaultThresholds()
	}
	return h
}

// Response is the standard API response wrapper.
type Response struct {
	Data any   `json:"data,omitempty"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any, meta *Meta) {
	WriteJSON(w, http.StatusOK, Response{Data: data, Meta: meta})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	resp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	WriteJSON(w, statusCode, resp)
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteUnauthorized writes a 401 Unauthorized response.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message, nil)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// RequireAdminToken authorizes requests carrying the configured admin
// bearer token. An empty configured token disables the admin surface
// entirely rather than leaving it open.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				WriteUnauthorized(w, "Admin API is not configured")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteUnauthorized(w, "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				WriteUnauthorized(w, "Invalid Authorization header format. Use: Bearer <token>")
				return
			}
			if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
				WriteUnauthorized(w, "Invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HealthResponse contains service health information.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Health returns the service health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}, nil)
}
