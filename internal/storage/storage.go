// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

// Package storage provides the durable key/value capability the cache and
// ledger are built on. Production uses BadgerDB; tests and ephemeral
// deployments use the in-memory store. Callers depend only on the Store
// interface so the persistence layer stays swappable.
package storage

import "errors"

// ErrNotFound is returned by Read when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Store is a minimal durable key/value capability.
//
// Keys are opaque strings; values are opaque byte payloads. Implementations
// must be safe for concurrent use.
type Store interface {
	// Read returns the value for key, or ErrNotFound if absent.
	Read(key string) ([]byte, error)

	// Write stores value under key, overwriting any prior value.
	Write(key string, value []byte) error

	// Remove deletes key. Removing an absent key is a no-op.
	Remove(key string) error

	// Keys returns every stored key that begins with prefix.
	Keys(prefix string) ([]string, error)

	// Close releases underlying resources.
	Close() error
}
