// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package store

import (
	"fmt"
	"time"
)

// Config configures the store.
type Config struct {
	// Path is the BadgerDB directory.
	Path string

	// MediaDir holds template images and queued pictures/tickets.
	MediaDir string

	// SyncWrites fsyncs every commit. Required for crash safety on the
	// device; tests may disable it.
	SyncWrites bool

	// InMemory runs Badger without a directory. Tests only.
	InMemory bool

	// DefaultPaperLevel is reported before the first paper update.
	DefaultPaperLevel float64

	// WriteRetryAttempts bounds conflict retries of read-modify-write calls.
	WriteRetryAttempts int

	// WriteRetryDelay is the first backoff delay between conflict retries.
	WriteRetryDelay time.Duration

	// GCRatio is passed to RunValueLogGC.
	GCRatio float64

	// CompactionInterval is how often the Compactor runs.
	CompactionInterval time.Duration

	// OrphanGracePeriod protects files younger than this from the orphan
	// sweep, covering the window between writing files and their record.
	OrphanGracePeriod time.Duration

	// CloseTimeout bounds Close.
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults for the given directories.
func DefaultConfig(path, mediaDir string) Config {
	return Config{
		Path:               path,
		MediaDir:           mediaDir,
		SyncWrites:         true,
		DefaultPaperLevel:  100,
		WriteRetryAttempts: 5,
		WriteRetryDelay:    20 * time.Millisecond,
		GCRatio:            0.5,
		CompactionInterval: 30 * time.Minute,
		OrphanGracePeriod:  10 * time.Minute,
		CloseTimeout:       10 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" && !c.InMemory {
		return &ConfigError{Field: "Path", Message: "required unless InMemory"}
	}
	if c.MediaDir == "" {
		return &ConfigError{Field: "MediaDir", Message: "required"}
	}
	if c.WriteRetryAttempts < 1 {
		return &ConfigError{Field: "WriteRetryAttempts", Message: "must be at least 1"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be in (0, 1)"}
	}
	if c.DefaultPaperLevel < 0 || c.DefaultPaperLevel > 100 {
		return &ConfigError{Field: "DefaultPaperLevel", Message: "must be in [0, 100]"}
	}
	return nil
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("store config: %s %s", e.Field, e.Message)
}
