// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

// Package prefetch issues best-effort HTTP prefetch requests in fixed-size
// concurrent batches.
//
// Every individual request is fire-and-forget: a network failure, timeout, or
// non-success status is counted and discarded. It neither aborts the batch
// nor the warm-up pass, and is never retried. A failed prefetch only means
// that resource will be fetched normally, with full handling, on actual use.
package prefetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tilewarm/internal/logging"
	"github.com/tomtom215/tilewarm/internal/metrics"
)

// DefaultBatchSize bounds peak in-flight requests when no size is configured.
const DefaultBatchSize = 20

// Config holds fetcher settings.
type Config struct {
	// BatchSize is the number of requests issued concurrently per chunk.
	// Default: DefaultBatchSize
	BatchSize int

	// Timeout applies to each individual request. Default: 30s
	Timeout time.Duration

	// RequestsPerSecond caps overall request throughput. 0 means unlimited.
	RequestsPerSecond float64
}

// Counts accumulates request outcomes for one fetcher.
// Rejected requests were short-circuited by an open circuit breaker; they
// still count as processed for progress purposes.
type Counts struct {
	Success  uint64
	Failure  uint64
	Rejected uint64
}

// Processed returns the total number of settled requests.
func (c Counts) Processed() uint64 {
	return c.Success + c.Failure + c.Rejected
}

// Fetcher groups request URLs into fixed-size chunks and issues each chunk
// concurrently, waiting for the whole chunk to settle before starting the
// next. Peak in-flight requests never exceed BatchSize.
//
// A circuit breaker spares the origin when it is clearly down: once open,
// requests fail fast and are counted as rejected. This preserves the
// best-effort contract (all failures are swallowed) while not hammering a
// dead host with tens of thousands of tile requests.
type Fetcher struct {
	httpClient *http.Client
	batchSize  int
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[struct{}]

	mu     sync.Mutex
	counts Counts
}

// New creates a fetcher from cfg, applying defaults for zero values.
func New(cfg Config) *Fetcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	f := &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		batchSize:  cfg.BatchSize,
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BatchSize)
	}
	f.cb = newOriginBreaker("prefetch-origin")
	return f
}

// newOriginBreaker builds the origin circuit breaker: opens at a 60% failure
// rate with at least 10 requests observed, resets counts every minute, and
// probes recovery after 2 minutes.
func newOriginBreaker(name string) *gobreaker.CircuitBreaker[struct{}] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("Prefetch circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
}

// BatchSize returns the configured chunk size.
func (f *Fetcher) BatchSize() int {
	return f.batchSize
}

// Counts returns a snapshot of accumulated request outcomes.
func (f *Fetcher) Counts() Counts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts
}

// Fetch issues every URL in order, chunked into batches of BatchSize.
// For N URLs it runs ceil(N/BatchSize) batches, each of size BatchSize
// except possibly the last. Returns the number of processed requests,
// which is always len(urls): no failure propagates.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) uint64 {
	var processed uint64
	for start := 0; start < len(urls); start += f.batchSize {
		end := start + f.batchSize
		if end > len(urls) {
			end = len(urls)
		}
		processed += f.fetchChunk(ctx, urls[start:end])
	}
	return processed
}

// fetchChunk issues one chunk concurrently and waits for it to settle.
func (f *Fetcher) fetchChunk(ctx context.Context, urls []string) uint64 {
	started := time.Now()

	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			f.fetchOne(ctx, target)
		}(u)
	}
	wg.Wait()

	metrics.PrefetchBatchesTotal.Inc()
	metrics.PrefetchBatchDuration.Observe(time.Since(started).Seconds())
	return uint64(len(urls))
}

// fetchOne performs a single anonymous GET. The result is explicitly
// discarded; only the outcome counters observe it.
func (f *Fetcher) fetchOne(ctx context.Context, target string) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			f.record(&f.counts.Failure, "failure")
			return
		}
	}

	_, err := f.cb.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
		if err != nil {
			return struct{}{}, err
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		// Drain so the transport can reuse the connection.
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return struct{}{}, errors.New(resp.Status)
		}
		return struct{}{}, nil
	})

	switch {
	case err == nil:
		f.record(&f.counts.Success, "success")
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		f.record(&f.counts.Rejected, "rejected")
	default:
		logging.Debug().Err(err).Str("url", target).Msg("Prefetch request failed")
		f.record(&f.counts.Failure, "failure")
	}
}

func (f *Fetcher) record(counter *uint64, outcome string) {
	f.mu.Lock()
	*counter++
	f.mu.Unlock()
	metrics.PrefetchRequestsTotal.WithLabelValues(outcome).Inc()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
