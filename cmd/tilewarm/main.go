// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

// Tilewarm pre-populates map CDN and proxy caches by walking a MapLibre/Mapbox
// style manifest and prefetching every resource a map client would request:
// the manifest itself, sprite sheets, glyph ranges, and the full tile pyramid
// up to a configured zoom.
//
// # Usage
//
//	STYLE_URL=https://tiles.example.com/style.json tilewarm
//
// Configuration comes from defaults, an optional YAML config file, and
// environment variables (STYLE_URL, MAX_ZOOM, BATCH_SIZE, ...), in that
// order of precedence.
//
// # Port 8857
//
// The default port 8857 echoes EPSG:3857 (Web Mercator), the projection whose
// tile pyramid this daemon walks.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/tilewarm/internal/api"
	"github.com/tomtom215/tilewarm/internal/cache"
	"github.com/tomtom215/tilewarm/internal/config"
	"github.com/tomtom215/tilewarm/internal/logging"
	"github.com/tomtom215/tilewarm/internal/prefetch"
	"github.com/tomtom215/tilewarm/internal/storage"
	"github.com/tomtom215/tilewarm/internal/style"
	"github.com/tomtom215/tilewarm/internal/supervisor"
	"github.com/tomtom215/tilewarm/internal/supervisor/services"
	"github.com/tomtom215/tilewarm/internal/warmup"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("style_url", cfg.Style.URL).
		Int("max_zoom", cfg.Style.MaxZoom).
		Bool("warm_on_startup", cfg.Style.WarmOnStartup).
		Msg("Starting Tilewarm")

	// Durable tier. A Badger open failure is not fatal: the cache degrades to
	// memory-only and the ledger treats every pass as a first run.
	store := openStore(cfg)
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing store")
			}
		}()
	}

	c := cache.New(store, cfg.Cache.DefaultTTL)
	ledger := cache.NewLedger(store)

	manifests := style.NewClient(cfg.Style.FetchTimeout)
	fetcher := prefetch.New(prefetch.Config{
		BatchSize:         cfg.Prefetch.BatchSize,
		Timeout:           cfg.Prefetch.Timeout,
		RequestsPerSecond: cfg.Prefetch.RequestsPerSecond,
	})
	tracker := warmup.NewTracker()

	orch, err := warmup.New(ledger, manifests, fetcher, tracker, warmup.Options{
		MaxZoom:          cfg.Style.MaxZoom,
		Throughput:       cfg.Prefetch.EstimatedThroughput,
		ProgressInterval: cfg.Prefetch.ProgressInterval,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build warm-up orchestrator")
	}

	// HTTP surface
	handler := api.NewHandler(c, tracker, orch, cfg.Style.URL)
	router := api.NewRouter(handler, nil)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Supervision
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if cfg.Style.WarmOnStartup {
		tree.AddWarmupService(services.NewWarmupService(orch, cfg.Style.URL))
		logging.Info().Msg("Startup warm-up service added")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor finishes.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// openStore opens the configured durable store. Returns nil when none is
// available; callers treat a nil store as degraded memory-only operation.
func openStore(cfg *config.Config) storage.Store {
	if cfg.Storage.InMemory {
		logging.Info().Msg("Using in-memory store (STORAGE_IN_MEMORY=true)")
		return storage.NewMemoryStore()
	}

	store, err := storage.NewBadgerStore(cfg.Storage.Path)
	if err != nil {
		logging.Warn().Err(err).Str("path", cfg.Storage.Path).
			Msg("Failed to open durable store, continuing memory-only")
		return nil
	}
	logging.Info().Str("path", cfg.Storage.Path).Msg("Durable store opened")
	return store
}
