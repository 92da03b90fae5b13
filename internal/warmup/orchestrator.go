// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

// Package warmup coordinates one warm-up pass: consult the ledger for
// idempotency, resolve the style manifest, enumerate the tile pyramid, drive
// the batch fetcher, report progress, and record completion.
//
// The entire pass is advisory. Nothing here is allowed to raise an error to
// the invoking application: any failure degrades to "did less warming than
// hoped", observable only through logs and metrics.
package warmup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/tilewarm/internal/cache"
	"github.com/tomtom215/tilewarm/internal/logging"
	"github.com/tomtom215/tilewarm/internal/metrics"
	"github.com/tomtom215/tilewarm/internal/prefetch"
	"github.com/tomtom215/tilewarm/internal/style"
	"github.com/tomtom215/tilewarm/internal/tiles"
)

// LedgerKey is the well-known durable key holding the last completed pass.
// One logical record, last-writer-wins, no history.
const LedgerKey = "warmup:last_pass"

// Default pass parameters.
const (
	DefaultMaxZoom          = 3
	DefaultThroughput       = 50 // estimated requests/second, for ETA display only
	DefaultProgressInterval = 100
)

// Meta is the durable record of one completed warm-up pass. It is written
// once, atomically, at the end of orchestration, and never mutated partially.
type Meta struct {
	StyleURL      string    `json:"style_url"`
	MaxZoom       int       `json:"max_zoom"`
	CompletedAt   time.Time `json:"completed_at"`
	TotalRequests uint64    `json:"total_requests"`
}

// Options configure an orchestrator.
type Options struct {
	// MaxZoom bounds the tile pyramid. Default: DefaultMaxZoom
	MaxZoom int

	// Throughput is the estimated requests/second used for the one-time ETA
	// log line. It is operator information, not an enforced deadline.
	// Default: DefaultThroughput
	Throughput float64

	// ProgressInterval is the processed-request interval between progress
	// notifications. Default: DefaultProgressInterval
	ProgressInterval uint64
}

// Orchestrator runs warm-up passes for a map style.
//
// State machine per pass:
//
//	Idle -> LedgerCheck -> Skipped
//	                    -> Resolving -> Aborted (manifest unreachable)
//	                                 -> Prefetching(initial) -> Prefetching(tiles) -> Completed
//
// There is no retry or resume state: a crash mid-pass leaves no
// partial-completion record, so the next invocation redoes the full pass.
// Re-running never corrupts state, only re-spends network effort.
type Orchestrator struct {
	ledger    *cache.Ledger
	manifests *style.Client
	fetcher   *prefetch.Fetcher
	tracker   *Tracker
	opts      Options
}

// New creates an orchestrator. All dependencies are required.
func New(ledger *cache.Ledger, manifests *style.Client, fetcher *prefetch.Fetcher, tracker *Tracker, opts Options) (*Orchestrator, error) {
	if ledger == nil || manifests == nil || fetcher == nil || tracker == nil {
		return nil, fmt.Errorf("warmup: nil dependency")
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = DefaultMaxZoom
	}
	if opts.Throughput <= 0 {
		opts.Throughput = DefaultThroughput
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	return &Orchestrator{
		ledger:    ledger,
		manifests: manifests,
		fetcher:   fetcher,
		tracker:   tracker,
		opts:      opts,
	}, nil
}

// Tracker returns the pass tracker for status reporting.
func (o *Orchestrator) Tracker() *Tracker {
	return o.tracker
}

// Run executes one warm-up pass for styleURL. It always returns nil: the
// pass is best-effort and failures terminate it silently. The returned error
// exists only so Run can serve directly as a service entry point.
//
// The intended usage is fire-and-forget at application startup; a caller
// that does await Run simply receives the full pass duration as the wait.
func (o *Orchestrator) Run(ctx context.Context, styleURL string) error {
	passID := uuid.New().String()
	log := logging.With().
		Str("component", "warmup").
		Str("pass_id", passID).
		Str("style_url", styleURL).
		Int("max_zoom", o.opts.MaxZoom).
		Logger()

	o.tracker.begin(passID, styleURL, o.opts.MaxZoom)

	// LedgerCheck: an unchanged (styleURL, maxZoom) pair short-circuits the
	// whole pass with zero network requests.
	var last Meta
	if o.ledger.Read(LedgerKey, &last) && last.StyleURL == styleURL && last.MaxZoom == o.opts.MaxZoom {
		log.Info().Time("completed_at", last.CompletedAt).Msg("Warm-up already completed for this style, skipping")
		o.tracker.finish(StateSkipped)
		metrics.WarmupPassesTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	o.tracker.setState(StateResolving)
	manifest, err := o.manifests.Fetch(ctx, styleURL)
	if err != nil {
		log.Warn().Err(err).Msg("Style manifest unreachable, aborting warm-up")
		o.tracker.finish(StateAborted)
		metrics.WarmupPassesTotal.WithLabelValues("aborted").Inc()
		return nil
	}
	resources, err := style.Resolve(manifest, styleURL)
	if err != nil {
		log.Warn().Err(err).Msg("Style manifest unresolvable, aborting warm-up")
		o.tracker.finish(StateAborted)
		metrics.WarmupPassesTotal.WithLabelValues("aborted").Inc()
		return nil
	}

	if dup := duplicateTemplates(resources.TileTemplates); len(dup) > 0 {
		// Known inefficiency, preserved deliberately: identical templates
		// are each warmed as an independent full pyramid.
		log.Debug().Strs("templates", dup).Msg("Duplicate tile templates will be fetched twice")
	}

	startedAt := time.Now()
	initial := o.initialURLs(styleURL, resources)
	estimated := o.estimateTotal(len(initial), len(resources.TileTemplates))
	o.tracker.setEstimate(estimated)

	log.Info().
		Uint64("estimated_requests", estimated).
		Int("tile_templates", len(resources.TileTemplates)).
		Int("sprite_urls", len(resources.Sprite)).
		Int("glyph_urls", len(resources.Glyphs)).
		Str("estimated_duration", humanizeETA(estimated, o.opts.Throughput)).
		Msg("Warm-up starting")

	// Prefetching(initial): the style document itself plus sprite and glyph
	// resources, batched like everything else.
	o.tracker.setState(StatePrefetchingInitial)
	processed := o.fetcher.Fetch(ctx, initial)
	o.tracker.progress(processed)
	metrics.WarmupRequestsProcessed.Set(float64(processed))

	// Prefetching(tiles): stream coordinates straight into batches so memory
	// stays bounded regardless of maxZoom.
	o.tracker.setState(StatePrefetchingTiles)
	processed += o.prefetchTiles(ctx, resources.TileTemplates, processed, estimated, &log)

	meta := Meta{
		StyleURL:      styleURL,
		MaxZoom:       o.opts.MaxZoom,
		CompletedAt:   time.Now(),
		TotalRequests: processed,
	}
	o.ledger.Write(LedgerKey, meta, 0)
	o.tracker.progress(processed)
	o.tracker.finish(StateCompleted)
	metrics.WarmupPassesTotal.WithLabelValues("completed").Inc()
	metrics.WarmupPassDuration.Observe(time.Since(startedAt).Seconds())

	log.Info().
		Uint64("total_requests", processed).
		Dur("duration", time.Since(startedAt)).
		Msg("Warm-up completed")
	return nil
}

// initialURLs is the non-tile resource set: the style document URL itself
// plus every sprite and glyph URL.
func (o *Orchestrator) initialURLs(styleURL string, res *style.Resources) []string {
	urls := make([]string, 0, 1+len(res.Sprite)+len(res.Glyphs))
	urls = append(urls, styleURL)
	urls = append(urls, res.Sprite...)
	urls = append(urls, res.Glyphs...)
	return urls
}

// estimateTotal computes the expected request count before prefetching
// begins. Each tile template is an independent full pyramid; a style with no
// templates still counts one pyramid so the estimate is never zero.
func (o *Orchestrator) estimateTotal(initialCount, templateCount int) uint64 {
	pyramids := uint64(templateCount)
	if pyramids == 0 {
		pyramids = 1
	}
	return uint64(initialCount) + tiles.CountUpToZoom(o.opts.MaxZoom)*pyramids
}

// prefetchTiles streams every (template, coordinate) request URL through the
// fetcher, emitting a progress notification whenever the cumulative processed
// count crosses the reporting interval. Returns the number of tile requests
// processed.
func (o *Orchestrator) prefetchTiles(ctx context.Context, templates []string, offset, estimated uint64, log *zerolog.Logger) uint64 {
	lastReported := offset / o.opts.ProgressInterval

	stream := o.fetcher.NewStream(ctx, func(streamed uint64) {
		total := offset + streamed
		o.tracker.progress(total)
		metrics.WarmupRequestsProcessed.Set(float64(total))

		if bucket := total / o.opts.ProgressInterval; bucket > lastReported {
			lastReported = bucket
			percent := float64(total) / float64(estimated) * 100
			if percent > 100 {
				percent = 100
			}
			log.Info().
				Uint64("processed", total).
				Uint64("estimated", estimated).
				Str("percent", fmt.Sprintf("%.1f%%", percent)).
				Msg("Warm-up progress")
		}
	})

	for _, tmpl := range templates {
		tiles.Enumerate(o.opts.MaxZoom, func(c tiles.Coord) bool {
			stream.Add(tiles.URL(tmpl, c))
			// No caller-facing cancellation exists; this only stops the
			// enumeration from spinning through a dead context at shutdown.
			return ctx.Err() == nil
		})
	}
	stream.Flush()
	return stream.Processed()
}

// duplicateTemplates returns the templates that appear more than once.
func duplicateTemplates(templates []string) []string {
	seen := make(map[string]int, len(templates))
	var dup []string
	for _, tmpl := range templates {
		seen[tmpl]++
		if seen[tmpl] == 2 {
			dup = append(dup, tmpl)
		}
	}
	return dup
}

// humanizeETA renders estimatedTotal/throughput as a single human-readable
// magnitude for the starting log line.
func humanizeETA(estimatedTotal uint64, throughput float64) string {
	seconds := float64(estimatedTotal) / throughput
	switch {
	case seconds < 90:
		return fmt.Sprintf("%.0f seconds", seconds)
	case seconds < 90*60:
		return fmt.Sprintf("%.0f minutes", seconds/60)
	default:
		return fmt.Sprintf("%.1f hours", seconds/3600)
	}
}
