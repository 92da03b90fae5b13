// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package warmup

import (
	"sync"
	"time"
)

// State names one phase of a warm-up pass.
type State string

// Pass states, in order of progression. Skipped and Aborted are terminal
// states reached without prefetching.
const (
	StateIdle               State = "idle"
	StateLedgerCheck        State = "ledger_check"
	StateResolving          State = "resolving"
	StatePrefetchingInitial State = "prefetching_initial"
	StatePrefetchingTiles   State = "prefetching_tiles"
	StateCompleted          State = "completed"
	StateSkipped            State = "skipped"
	StateAborted            State = "aborted"
)

// Snapshot is a point-in-time view of the most recent warm-up pass,
// served by the status API.
type Snapshot struct {
	PassID         string    `json:"pass_id,omitempty"`
	State          State     `json:"state"`
	StyleURL       string    `json:"style_url,omitempty"`
	MaxZoom        int       `json:"max_zoom,omitempty"`
	EstimatedTotal uint64    `json:"estimated_total_requests,omitempty"`
	Processed      uint64    `json:"processed_requests"`
	Percent        float64   `json:"percent"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`
}

// Tracker records the progress of the current (or most recent) pass.
// Overlapping passes are not mutually excluded; the tracker reflects the
// last writer, matching the engine's accepted-redundancy model.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{State: StateIdle}}
}

// Snapshot returns a copy of the current pass view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Running reports whether a pass is currently in a non-terminal state.
func (t *Tracker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch t.snap.State {
	case StateLedgerCheck, StateResolving, StatePrefetchingInitial, StatePrefetchingTiles:
		return true
	default:
		return false
	}
}

// begin resets the tracker for a new pass.
func (t *Tracker) begin(passID, styleURL string, maxZoom int) {
	t.mu.Lock()
	t.snap = Snapshot{
		PassID:    passID,
		State:     StateLedgerCheck,
		StyleURL:  styleURL,
		MaxZoom:   maxZoom,
		StartedAt: time.Now(),
	}
	t.mu.Unlock()
}

// setState advances the pass to a new phase.
func (t *Tracker) setState(s State) {
	t.mu.Lock()
	t.snap.State = s
	t.mu.Unlock()
}

// setEstimate records the pre-computed total request estimate.
func (t *Tracker) setEstimate(total uint64) {
	t.mu.Lock()
	t.snap.EstimatedTotal = total
	t.mu.Unlock()
}

// progress updates the processed count and derived percentage.
func (t *Tracker) progress(processed uint64) {
	t.mu.Lock()
	t.snap.Processed = processed
	if t.snap.EstimatedTotal > 0 {
		t.snap.Percent = float64(processed) / float64(t.snap.EstimatedTotal) * 100
		if t.snap.Percent > 100 {
			t.snap.Percent = 100
		}
	}
	t.mu.Unlock()
}

// finish moves the pass to a terminal state.
func (t *Tracker) finish(s State) {
	t.mu.Lock()
	t.snap.State = s
	t.snap.FinishedAt = time.Now()
	if s == StateCompleted {
		t.snap.Percent = 100
	}
	t.mu.Unlock()
}
