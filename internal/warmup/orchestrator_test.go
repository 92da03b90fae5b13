// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package warmup

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/tilewarm/internal/cache"
	"github.com/tomtom215/tilewarm/internal/prefetch"
	"github.com/tomtom215/tilewarm/internal/storage"
	"github.com/tomtom215/tilewarm/internal/style"
)

// styleOrigin serves a style manifest plus every derived resource, counting
// requests by kind.
type styleOrigin struct {
	srv      *httptest.Server
	manifest atomic.Int64
	tiles    atomic.Int64
	other    atomic.Int64
}

func newStyleOrigin(t *testing.T) *styleOrigin {
	t.Helper()
	o := &styleOrigin{}
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/style.json":
			o.manifest.Add(1)
			fmt.Fprintf(w, `{
				"sprite": "%s/sprite",
				"glyphs": "%s/fonts/{fontstack}/{range}.pbf",
				"sources": {
					"osm": {"tiles": ["%s/tiles/{z}/{x}/{y}.pbf"]}
				},
				"layers": [
					{"layout": {"text-font": ["Noto Sans Regular"]}}
				]
			}`, o.srv.URL, o.srv.URL, o.srv.URL)
		case len(r.URL.Path) > 7 && r.URL.Path[:7] == "/tiles/":
			o.tiles.Add(1)
		default:
			o.other.Add(1)
		}
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func newOrchestrator(t *testing.T, store storage.Store, maxZoom int) *Orchestrator {
	t.Helper()
	orch, err := New(
		cache.NewLedger(store),
		style.NewClient(5*time.Second),
		prefetch.New(prefetch.Config{BatchSize: 5, Timeout: 5 * time.Second}),
		NewTracker(),
		Options{MaxZoom: maxZoom},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return orch
}

func TestRunCompletesFullPass(t *testing.T) {
	origin := newStyleOrigin(t)
	store := storage.NewMemoryStore()
	orch := newOrchestrator(t, store, 1)

	if err := orch.Run(context.Background(), origin.srv.URL+"/style.json"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// One manifest fetch for resolution plus one prefetch of the style URL.
	if got := origin.manifest.Load(); got != 2 {
		t.Errorf("manifest requests = %d, want 2", got)
	}
	// Zoom 0..1 over one template: 1 + 4 = 5 tiles.
	if got := origin.tiles.Load(); got != 5 {
		t.Errorf("tile requests = %d, want 5", got)
	}
	// 4 sprite URLs + 1 font stack x 2 glyph ranges = 6.
	if got := origin.other.Load(); got != 6 {
		t.Errorf("sprite+glyph requests = %d, want 6", got)
	}

	snap := orch.Tracker().Snapshot()
	if snap.State != StateCompleted {
		t.Errorf("state = %s, want %s", snap.State, StateCompleted)
	}
	// style URL + 6 initial + 5 tiles
	if snap.Processed != 12 {
		t.Errorf("processed = %d, want 12", snap.Processed)
	}
	if snap.EstimatedTotal != 12 {
		t.Errorf("estimated = %d, want 12", snap.EstimatedTotal)
	}

	var meta Meta
	if !cache.NewLedger(store).Read(LedgerKey, &meta) {
		t.Fatal("expected completion record in ledger")
	}
	if meta.TotalRequests != 12 {
		t.Errorf("ledger total = %d, want 12", meta.TotalRequests)
	}
}

func TestRunSecondPassSkips(t *testing.T) {
	origin := newStyleOrigin(t)
	store := storage.NewMemoryStore()
	styleURL := origin.srv.URL + "/style.json"

	first := newOrchestrator(t, store, 1)
	if err := first.Run(context.Background(), styleURL); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	after := origin.manifest.Load() + origin.tiles.Load() + origin.other.Load()

	// Same style, same zoom, same ledger: the second pass must be free.
	second := newOrchestrator(t, store, 1)
	if err := second.Run(context.Background(), styleURL); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	total := origin.manifest.Load() + origin.tiles.Load() + origin.other.Load()
	if total != after {
		t.Errorf("second pass issued %d requests, want 0", total-after)
	}
	if snap := second.Tracker().Snapshot(); snap.State != StateSkipped {
		t.Errorf("state = %s, want %s", snap.State, StateSkipped)
	}
}

func TestRunDifferentZoomRedoesPass(t *testing.T) {
	origin := newStyleOrigin(t)
	store := storage.NewMemoryStore()
	styleURL := origin.srv.URL + "/style.json"

	first := newOrchestrator(t, store, 1)
	if err := first.Run(context.Background(), styleURL); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	tilesAfterFirst := origin.tiles.Load()

	second := newOrchestrator(t, store, 2)
	if err := second.Run(context.Background(), styleURL); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	// Zoom 0..2: 21 tiles for the second pass.
	if got := origin.tiles.Load() - tilesAfterFirst; got != 21 {
		t.Errorf("second pass tile requests = %d, want 21", got)
	}
	if snap := second.Tracker().Snapshot(); snap.State != StateCompleted {
		t.Errorf("state = %s, want %s", snap.State, StateCompleted)
	}
}

func TestRunAbortsOnUnreachableManifest(t *testing.T) {
	store := storage.NewMemoryStore()
	orch := newOrchestrator(t, store, 1)

	if err := orch.Run(context.Background(), "http://127.0.0.1:1/style.json"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if snap := orch.Tracker().Snapshot(); snap.State != StateAborted {
		t.Errorf("state = %s, want %s", snap.State, StateAborted)
	}

	// An aborted pass leaves no completion record, so the next run retries.
	var meta Meta
	if cache.NewLedger(store).Read(LedgerKey, &meta) {
		t.Error("expected no ledger record after aborted pass")
	}
}

func TestRunAbortsOnManifestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	orch := newOrchestrator(t, storage.NewMemoryStore(), 1)
	if err := orch.Run(context.Background(), srv.URL+"/style.json"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if snap := orch.Tracker().Snapshot(); snap.State != StateAborted {
		t.Errorf("state = %s, want %s", snap.State, StateAborted)
	}
}

func TestNewRejectsNilDependencies(t *testing.T) {
	if _, err := New(nil, nil, nil, nil, Options{}); err == nil {
		t.Error("expected error for nil dependencies")
	}
}

func TestEstimateTotal(t *testing.T) {
	orch := newOrchestrator(t, storage.NewMemoryStore(), 3)

	tests := []struct {
		initial   int
		templates int
		want      uint64
	}{
		{7, 1, 7 + 85},
		{7, 2, 7 + 170},
		{7, 0, 7 + 85}, // no declared templates still estimates one pyramid
	}
	for _, tt := range tests {
		if got := orch.estimateTotal(tt.initial, tt.templates); got != tt.want {
			t.Errorf("estimateTotal(%d, %d) = %d, want %d", tt.initial, tt.templates, got, tt.want)
		}
	}
}

func TestDuplicateTemplates(t *testing.T) {
	dup := duplicateTemplates([]string{"a", "b", "a", "c", "a"})
	if len(dup) != 1 || dup[0] != "a" {
		t.Errorf("duplicateTemplates = %v, want [a]", dup)
	}

	if dup := duplicateTemplates([]string{"a", "b"}); dup != nil {
		t.Errorf("duplicateTemplates = %v, want nil", dup)
	}
}

func TestHumanizeETA(t *testing.T) {
	tests := []struct {
		total      uint64
		throughput float64
		want       string
	}{
		{50, 50, "1 seconds"},
		{6000, 50, "2 minutes"},
		{500000, 50, "2.8 hours"},
	}
	for _, tt := range tests {
		if got := humanizeETA(tt.total, tt.throughput); got != tt.want {
			t.Errorf("humanizeETA(%d, %g) = %q, want %q", tt.total, tt.throughput, got, tt.want)
		}
	}
}
