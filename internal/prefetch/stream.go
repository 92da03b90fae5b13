// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package prefetch

import "context"

// Stream feeds URLs into the fetcher one at a time, flushing a batch whenever
// BatchSize URLs have accumulated. It lets a producer enumerate millions of
// tile URLs without ever holding more than one batch in memory.
//
// Stream is not safe for concurrent use; it is driven by the single
// orchestration flow.
type Stream struct {
	fetcher   *Fetcher
	ctx       context.Context
	buf       []string
	processed uint64
	onBatch   func(processed uint64)
}

// NewStream creates a stream over the fetcher. onBatch, if non-nil, is
// invoked after each batch settles with the cumulative processed count.
func (f *Fetcher) NewStream(ctx context.Context, onBatch func(processed uint64)) *Stream {
	return &Stream{
		fetcher: f,
		ctx:     ctx,
		buf:     make([]string, 0, f.batchSize),
		onBatch: onBatch,
	}
}

// Add appends a URL, flushing when a full batch has accumulated.
// Add blocks while a flush is in flight, which is what bounds producer speed
// to fetcher speed.
func (s *Stream) Add(url string) {
	s.buf = append(s.buf, url)
	if len(s.buf) >= s.fetcher.batchSize {
		s.flush()
	}
}

// Flush settles any remaining partial batch. Callers must invoke it once
// after the final Add.
func (s *Stream) Flush() {
	if len(s.buf) > 0 {
		s.flush()
	}
}

// Processed returns the number of requests settled through this stream.
func (s *Stream) Processed() uint64 {
	return s.processed
}

func (s *Stream) flush() {
	s.processed += s.fetcher.fetchChunk(s.ctx, s.buf)
	s.buf = s.buf[:0]
	if s.onBatch != nil {
		s.onBatch(s.processed)
	}
}
