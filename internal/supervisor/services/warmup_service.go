// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package services

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// WarmupRunner runs a warm-up pass against a style URL. Satisfied by
// *warmup.Orchestrator.
type WarmupRunner interface {
	Run(ctx context.Context, styleURL string) error
}

// WarmupService runs a single warm-up pass on startup and then retires
// itself from the supervisor. A pass is best-effort and never reports
// failure, so there is nothing to restart.
type WarmupService struct {
	runner   WarmupRunner
	styleURL string
}

// NewWarmupService creates the one-shot startup warm-up service.
func NewWarmupService(runner WarmupRunner, styleURL string) *WarmupService {
	return &WarmupService{runner: runner, styleURL: styleURL}
}

// Serve implements suture.Service. It runs one pass and returns
// suture.ErrDoNotRestart so the supervisor removes the service instead of
// restarting it.
func (s *WarmupService) Serve(ctx context.Context) error {
	// Best-effort pass; failures are absorbed by the orchestrator.
	_ = s.runner.Run(ctx, s.styleURL)
	return suture.ErrDoNotRestart
}

func (s *WarmupService) String() string { return "warmup-startup" }
