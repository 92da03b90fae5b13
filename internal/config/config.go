// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

// Package config loads Tilewarm configuration with Koanf v2 layered sources:
// built-in defaults, an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration.
type Config struct {
	Style    StyleConfig    `koanf:"style"`
	Prefetch PrefetchConfig `koanf:"prefetch"`
	Cache    CacheConfig    `koanf:"cache"`
	Storage  StorageConfig  `koanf:"storage"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// StyleConfig selects the map style to warm.
type StyleConfig struct {
	// URL is the style manifest URL. Required when WarmOnStartup is set.
	URL string `koanf:"url"`

	// MaxZoom bounds the tile pyramid (zoom 0..MaxZoom inclusive).
	MaxZoom int `koanf:"max_zoom"`

	// WarmOnStartup starts a pass automatically when the daemon boots.
	WarmOnStartup bool `koanf:"warm_on_startup"`

	// FetchTimeout bounds the manifest request.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
}

// PrefetchConfig tunes the batch fetcher and progress reporting.
type PrefetchConfig struct {
	BatchSize int           `koanf:"batch_size"`
	Timeout   time.Duration `koanf:"timeout"`

	// RequestsPerSecond caps prefetch throughput. 0 = unlimited.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// EstimatedThroughput (requests/second) feeds the one-time ETA log.
	EstimatedThroughput float64 `koanf:"estimated_throughput"`

	// ProgressInterval is the processed-request interval between progress logs.
	ProgressInterval uint64 `koanf:"progress_interval"`
}

// CacheConfig tunes the shared TTL cache.
type CacheConfig struct {
	DefaultTTL time.Duration `koanf:"default_ttl"`
}

// StorageConfig selects the durable tier.
type StorageConfig struct {
	// Path is the BadgerDB directory.
	Path string `koanf:"path"`

	// InMemory replaces BadgerDB with a volatile store. Intended for tests
	// and ephemeral deployments; the warm-up ledger will not survive restarts.
	InMemory bool `koanf:"in_memory"`
}

// ServerConfig tunes the status HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all sensible default values.
// These are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Style: StyleConfig{
			URL:           "",
			MaxZoom:       3,
			WarmOnStartup: true,
			FetchTimeout:  30 * time.Second,
		},
		Prefetch: PrefetchConfig{
			BatchSize:           20,
			Timeout:             30 * time.Second,
			RequestsPerSecond:   0, // Unlimited
			EstimatedThroughput: 50,
			ProgressInterval:    100,
		},
		Cache: CacheConfig{
			DefaultTTL: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Path:     "/data/tilewarm",
			InMemory: false,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8857,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateStyle(); err != nil {
		return err
	}
	if err := c.validatePrefetch(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateStyle() error {
	if c.Style.WarmOnStartup && c.Style.URL == "" {
		return fmt.Errorf("STYLE_URL is required when STYLE_WARM_ON_STARTUP=true")
	}
	if c.Style.URL != "" {
		if err := validateHTTPURL(c.Style.URL, "STYLE_URL"); err != nil {
			return err
		}
	}
	if c.Style.MaxZoom < 0 || c.Style.MaxZoom > 22 {
		return fmt.Errorf("STYLE_MAX_ZOOM must be between 0 and 22, got %d", c.Style.MaxZoom)
	}
	return nil
}

func (c *Config) validatePrefetch() error {
	if c.Prefetch.BatchSize < 1 {
		return fmt.Errorf("PREFETCH_BATCH_SIZE must be at least 1, got %d", c.Prefetch.BatchSize)
	}
	if c.Prefetch.RequestsPerSecond < 0 {
		return fmt.Errorf("PREFETCH_REQUESTS_PER_SECOND must not be negative")
	}
	if c.Prefetch.EstimatedThroughput <= 0 {
		return fmt.Errorf("PREFETCH_ESTIMATED_THROUGHPUT must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("STORAGE_PATH is required unless STORAGE_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

// validateHTTPURL checks that raw is an absolute http(s) URL.
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}
