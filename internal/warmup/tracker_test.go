// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package warmup

import "testing"

func TestTrackerStartsIdle(t *testing.T) {
	tr := NewTracker()

	if tr.Running() {
		t.Error("expected new tracker to not be running")
	}
	if snap := tr.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %s, want %s", snap.State, StateIdle)
	}
}

func TestTrackerRunningStates(t *testing.T) {
	tr := NewTracker()
	tr.begin("pass-1", "https://tiles.example.com/style.json", 3)

	for _, s := range []State{StateLedgerCheck, StateResolving, StatePrefetchingInitial, StatePrefetchingTiles} {
		tr.setState(s)
		if !tr.Running() {
			t.Errorf("expected Running in state %s", s)
		}
	}

	for _, s := range []State{StateCompleted, StateSkipped, StateAborted} {
		tr.finish(s)
		if tr.Running() {
			t.Errorf("expected not Running in state %s", s)
		}
	}
}

func TestTrackerProgressPercent(t *testing.T) {
	tr := NewTracker()
	tr.begin("pass-1", "https://tiles.example.com/style.json", 3)
	tr.setEstimate(200)

	tr.progress(50)
	if snap := tr.Snapshot(); snap.Percent != 25 {
		t.Errorf("percent = %g, want 25", snap.Percent)
	}

	// The estimate is approximate; processed can overshoot it.
	tr.progress(250)
	if snap := tr.Snapshot(); snap.Percent != 100 {
		t.Errorf("percent = %g, want clamped 100", snap.Percent)
	}
}

func TestTrackerFinishCompletedPinsPercent(t *testing.T) {
	tr := NewTracker()
	tr.begin("pass-1", "https://tiles.example.com/style.json", 3)
	tr.setEstimate(100)
	tr.progress(97)

	tr.finish(StateCompleted)
	snap := tr.Snapshot()
	if snap.Percent != 100 {
		t.Errorf("percent = %g, want 100", snap.Percent)
	}
	if snap.FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be set")
	}
}

func TestTrackerBeginResetsPriorPass(t *testing.T) {
	tr := NewTracker()
	tr.begin("pass-1", "https://tiles.example.com/a.json", 3)
	tr.setEstimate(100)
	tr.progress(100)
	tr.finish(StateCompleted)

	tr.begin("pass-2", "https://tiles.example.com/b.json", 5)
	snap := tr.Snapshot()
	if snap.PassID != "pass-2" || snap.Processed != 0 || snap.Percent != 0 {
		t.Errorf("expected fresh snapshot, got %+v", snap)
	}
	if snap.MaxZoom != 5 {
		t.Errorf("max zoom = %d, want 5", snap.MaxZoom)
	}
}
