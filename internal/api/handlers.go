// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tilewarm/internal/cache"
	"github.com/tomtom215/tilewarm/internal/logging"
	"github.com/tomtom215/tilewarm/internal/models"
	"github.com/tomtom215/tilewarm/internal/warmup"
)

// maxTriggerBodyBytes bounds the warm-up trigger request body.
const maxTriggerBodyBytes = 64 * 1024

// WarmupRunner runs a warm-up pass against a style URL. Satisfied by
// *warmup.Orchestrator.
type WarmupRunner interface {
	Run(ctx context.Context, styleURL string) error
}

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	cache     *cache.Cache
	tracker   *warmup.Tracker
	runner    WarmupRunner
	styleURL  string // default style URL for triggered passes
	startTime time.Time
}

// NewHandler creates a request handler.
func NewHandler(c *cache.Cache, tracker *warmup.Tracker, runner WarmupRunner, defaultStyleURL string) *Handler {
	return &Handler{
		cache:     c,
		tracker:   tracker,
		runner:    runner,
		styleURL:  defaultStyleURL,
		startTime: time.Now(),
	}
}

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// HealthReady handles readiness probe requests (Kubernetes-style).
// The service stays ready in degraded (memory-only) mode; the durable store
// state is reported so operators can alert on it.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	durableAvailable := h.cache != nil && !h.cache.Degraded()
	ready := h.cache != nil

	statusCode := http.StatusOK
	status := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	respondJSON(w, statusCode, &models.APIResponse{
		Status: status,
		Data: map[string]interface{}{
			"durable_store_available": durableAvailable,
			"ready_to_serve":          ready,
			"uptime":                  time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// WarmupStatus returns a snapshot of the current or most recent warm-up pass.
func (h *Handler) WarmupStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   h.tracker.Snapshot(),
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// WarmupTriggerRequest is the body for POST /api/v1/warmup. StyleURL falls
// back to the configured style URL when omitted.
type WarmupTriggerRequest struct {
	StyleURL string `json:"style_url" validate:"omitempty,http_url"`
}

// WarmupTrigger starts an ad-hoc warm-up pass. A pass already running in this
// process is not interrupted; the request is rejected with 409 instead.
func (h *Handler) WarmupTrigger(w http.ResponseWriter, r *http.Request) {
	var req WarmupTriggerRequest

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBodyBytes))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body", err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "Request body must be valid JSON", err)
			return
		}
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	styleURL := req.StyleURL
	if styleURL == "" {
		styleURL = h.styleURL
	}
	if styleURL == "" {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "No style URL provided and none configured", nil)
		return
	}

	if h.tracker.Running() {
		respondError(w, r, http.StatusConflict, "WARMUP_IN_PROGRESS", "A warm-up pass is already running", nil)
		return
	}

	// Detached from the request context: the pass outlives the HTTP request.
	go func() {
		if err := h.runner.Run(context.Background(), styleURL); err != nil {
			logging.Error().Err(err).Msg("Triggered warm-up pass failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, &models.APIResponse{
		Status: "accepted",
		Data: map[string]interface{}{
			"style_url": styleURL,
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// CacheStats reports cache performance counters and mode.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.GetStats()

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
			"keys":      stats.TotalKeys,
			"degraded":  h.cache.Degraded(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
