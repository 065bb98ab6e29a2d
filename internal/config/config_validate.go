// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Device.ID) == "" {
		return fmt.Errorf("FIGURE_DEVICE_ID is required")
	}
	if _, err := time.LoadLocation(c.Device.Timezone); err != nil {
		return fmt.Errorf("device.timezone %q is invalid: %w", c.Device.Timezone, err)
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if c.Paper.PixelsPerPercent <= 0 {
		return fmt.Errorf("paper.pixels_per_percent must be positive")
	}
	if c.Paper.RefillLevel <= 0 || c.Paper.RefillLevel > 100 {
		return fmt.Errorf("paper.refill_level must be in (0, 100], got %v", c.Paper.RefillLevel)
	}
	return c.validateLogging()
}

func (c *Config) validateRemote() error {
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote.base_url must be an http(s) URL, got %q", c.Remote.BaseURL)
	}
	if c.Remote.Timeout <= 0 || c.Remote.UploadTimeout <= 0 {
		return fmt.Errorf("remote timeouts must be positive")
	}
	if c.Remote.BreakerFailureRatio <= 0 || c.Remote.BreakerFailureRatio > 1 {
		return fmt.Errorf("remote.breaker_failure_ratio must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Media.Dir == "" {
		return fmt.Errorf("media.dir is required")
	}
	if c.Store.WriteRetryAttempts < 1 {
		return fmt.Errorf("store.write_retry_attempts must be at least 1")
	}
	if c.Store.GCRatio <= 0 || c.Store.GCRatio >= 1 {
		return fmt.Errorf("store.gc_ratio must be in (0, 1)")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Interval < time.Second {
		return fmt.Errorf("sync.interval must be at least 1s")
	}
	if c.Upload.Interval < time.Second {
		return fmt.Errorf("upload.interval must be at least 1s")
	}
	if c.Sync.CodesLowWater < 0 || c.Sync.CodesBatchSize <= 0 {
		return fmt.Errorf("sync code thresholds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled":
	default:
		return fmt.Errorf("logging.level %q is invalid", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q is invalid", c.Logging.Format)
	}
	return nil
}
