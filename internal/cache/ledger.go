// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package cache

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tilewarm/internal/logging"
	"github.com/tomtom215/tilewarm/internal/storage"
)

// ledgerPrefix keeps ledger entries in their own durable namespace,
// separate from cache entries.
const ledgerPrefix = "tilewarm:ledger:"

// ledgerEnvelope is the durable JSON encoding of a ledger record.
// ExpiresAt is nil for records without expiry.
type ledgerEnvelope struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Ledger is a thin durable-only key/value helper used to record warm-up
// completion metadata.
//
// It never returns an error: storage failures and corrupt payloads are
// logged and treated as a miss on read or a no-op on write. The warm-up
// orchestration degrades to redundant work, never to a fault.
type Ledger struct {
	store storage.Store
}

// NewLedger creates a ledger over the given durable store.
// A nil store yields a ledger where every read misses and writes are no-ops.
func NewLedger(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// Read loads the record for key into out. Returns false when the key is
// absent, expired, undecodable, or the store is unavailable. Elapsed and
// corrupt entries are removed opportunistically.
func (l *Ledger) Read(key string, out interface{}) bool {
	if l.store == nil {
		return false
	}

	raw, err := l.store.Read(ledgerPrefix + key)
	if err != nil {
		if err != storage.ErrNotFound {
			logging.Debug().Err(err).Str("key", key).Msg("Ledger read failed")
		}
		return false
	}

	var env ledgerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Removing corrupt ledger payload")
		l.Remove(key)
		return false
	}
	if env.ExpiresAt != nil && time.Now().After(*env.ExpiresAt) {
		l.Remove(key)
		return false
	}
	if err := json.Unmarshal(env.Value, out); err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Ledger payload does not match target type")
		l.Remove(key)
		return false
	}
	return true
}

// Write stores value under key. A ttl of 0 means no expiry.
// Failures are logged and swallowed.
func (l *Ledger) Write(key string, value interface{}, ttl time.Duration) {
	if l.store == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Ledger value not serializable")
		return
	}
	env := ledgerEnvelope{Value: raw, UpdatedAt: time.Now()}
	if ttl > 0 {
		exp := env.UpdatedAt.Add(ttl)
		env.ExpiresAt = &exp
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := l.store.Write(ledgerPrefix+key, payload); err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Ledger write failed")
	}
}

// Remove deletes the record for key. Failures are logged and swallowed.
func (l *Ledger) Remove(key string) {
	if l.store == nil {
		return
	}
	if err := l.store.Remove(ledgerPrefix + key); err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Ledger remove failed")
	}
}
