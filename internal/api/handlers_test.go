// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tilewarm/internal/cache"
	"github.com/tomtom215/tilewarm/internal/prefetch"
	"github.com/tomtom215/tilewarm/internal/storage"
	"github.com/tomtom215/tilewarm/internal/style"
	"github.com/tomtom215/tilewarm/internal/warmup"
)

// fakeRunner records triggered passes without doing any work.
type fakeRunner struct {
	calls    atomic.Int64
	lastURL  atomic.Value
	started  chan struct{}
	blockFor chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan struct{}, 8)}
}

func (f *fakeRunner) Run(ctx context.Context, styleURL string) error {
	f.calls.Add(1)
	f.lastURL.Store(styleURL)
	f.started <- struct{}{}
	if f.blockFor != nil {
		<-f.blockFor
	}
	return nil
}

func newTestRouter(t *testing.T, runner WarmupRunner, tracker *warmup.Tracker) http.Handler {
	t.Helper()
	c := cache.New(storage.NewMemoryStore(), time.Minute)
	handler := NewHandler(c, tracker, runner, "https://tiles.example.com/style.json")
	return NewRouter(handler, &ChiMiddlewareConfig{RateLimitDisabled: true}).Setup()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, newFakeRunner(), warmup.NewTracker())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "success" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestHealthReady(t *testing.T) {
	router := newTestRouter(t, newFakeRunner(), warmup.NewTracker())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	if data["ready_to_serve"] != true {
		t.Errorf("ready_to_serve = %v", data["ready_to_serve"])
	}
	if data["durable_store_available"] != true {
		t.Errorf("durable_store_available = %v", data["durable_store_available"])
	}
}

func TestWarmupStatusReflectsTracker(t *testing.T) {
	tracker := warmup.NewTracker()
	router := newTestRouter(t, newFakeRunner(), tracker)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/warmup/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	if data["state"] != "idle" {
		t.Errorf("state = %v, want idle", data["state"])
	}
}

func TestWarmupTriggerUsesDefaultStyleURL(t *testing.T) {
	runner := newFakeRunner()
	router := newTestRouter(t, runner, warmup.NewTracker())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/warmup", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not invoked")
	}
	if got := runner.lastURL.Load(); got != "https://tiles.example.com/style.json" {
		t.Errorf("style URL = %v", got)
	}
}

func TestWarmupTriggerWithBody(t *testing.T) {
	runner := newFakeRunner()
	router := newTestRouter(t, runner, warmup.NewTracker())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/warmup",
		strings.NewReader(`{"style_url": "https://other.example.com/style.json"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not invoked")
	}
	if got := runner.lastURL.Load(); got != "https://other.example.com/style.json" {
		t.Errorf("style URL = %v", got)
	}
}

func TestWarmupTriggerRejectsInvalidURL(t *testing.T) {
	runner := newFakeRunner()
	router := newTestRouter(t, runner, warmup.NewTracker())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/warmup",
		strings.NewReader(`{"style_url": "not a url"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if runner.calls.Load() != 0 {
		t.Error("runner should not run for invalid request")
	}
}

func TestWarmupTriggerRejectsMalformedJSON(t *testing.T) {
	router := newTestRouter(t, newFakeRunner(), warmup.NewTracker())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/warmup", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWarmupTriggerConflictWhileRunning(t *testing.T) {
	// A real orchestrator drives the tracker through its running states; the
	// manifest server blocks so the pass stays in the resolving state.
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tracker := warmup.NewTracker()
	orch, err := warmup.New(
		cache.NewLedger(storage.NewMemoryStore()),
		style.NewClient(30*time.Second),
		prefetch.New(prefetch.Config{}),
		tracker,
		warmup.Options{MaxZoom: 1},
	)
	if err != nil {
		t.Fatalf("warmup.New failed: %v", err)
	}

	c := cache.New(storage.NewMemoryStore(), time.Minute)
	handler := NewHandler(c, tracker, orch, srv.URL+"/style.json")
	router := NewRouter(handler, &ChiMiddlewareConfig{RateLimitDisabled: true}).Setup()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/warmup", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first trigger status = %d, want 202", rec.Code)
	}

	// Wait for the pass to reach a running state.
	deadline := time.Now().Add(2 * time.Second)
	for !tracker.Running() {
		if time.Now().After(deadline) {
			t.Fatal("pass never reached a running state")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/warmup", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("second trigger status = %d, want 409", rec.Code)
	}
}

func TestCacheStats(t *testing.T) {
	c := cache.New(storage.NewMemoryStore(), time.Minute)
	c.Set("k", "v")
	c.Get("k")
	c.Get("missing")

	handler := NewHandler(c, warmup.NewTracker(), newFakeRunner(), "")
	router := NewRouter(handler, &ChiMiddlewareConfig{RateLimitDisabled: true}).Setup()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	if data["hits"] != float64(1) {
		t.Errorf("hits = %v, want 1", data["hits"])
	}
	if data["misses"] != float64(1) {
		t.Errorf("misses = %v, want 1", data["misses"])
	}
	if data["degraded"] != false {
		t.Errorf("degraded = %v, want false", data["degraded"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, newFakeRunner(), warmup.NewTracker())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tilewarm_") {
		t.Error("expected tilewarm metrics in exposition")
	}
}

func TestRequestIDHeader(t *testing.T) {
	router := newTestRouter(t, newFakeRunner(), warmup.NewTracker())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}
