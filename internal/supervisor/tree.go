// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

// Package supervisor arranges the daemon's long-running parts under a suture
// supervision tree.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes supervisor restart behavior.
type TreeConfig struct {
	// FailureThreshold is the failure count that triggers backoff. Default 5.
	FailureThreshold float64

	// FailureDecay is the half-life of the failure count in seconds. Default 30.
	FailureDecay float64

	// FailureBackoff is how long a supervisor pauses once the threshold is
	// crossed. Default 15s.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds graceful shutdown of each service. Default 10s.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig mirrors suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// SupervisorTree holds the two-layer tree: a warm-up layer for pass runners
// and an api layer for the HTTP server. A crashing warm-up pass never takes
// the status API down with it.
type SupervisorTree struct {
	root *suture.Supervisor
	warm *suture.Supervisor
	api  *suture.Supervisor
}

// NewSupervisorTree builds the tree. Supervisor events are logged through
// the given slog.Logger via sutureslog. Zero config fields get defaults.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	// sutureslog's MustHook has a pointer receiver.
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	rootSpec := suture.Spec{
		EventHook:        hook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	// Children inherit the root's EventHook when added.
	childSpec := rootSpec
	childSpec.EventHook = nil

	tree := &SupervisorTree{
		root: suture.New("tilewarm", rootSpec),
		warm: suture.New("warmup-layer", childSpec),
		api:  suture.New("api-layer", childSpec),
	}
	tree.root.Add(tree.warm)
	tree.root.Add(tree.api)

	return tree, nil
}

// AddWarmupService places a service in the warm-up layer.
func (t *SupervisorTree) AddWarmupService(svc suture.Service) suture.ServiceToken {
	return t.warm.Add(svc)
}

// AddAPIService places a service in the api layer.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine; the returned channel yields
// the final error and is then closed.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored the shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
