// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package config loads the photobooth configuration.
//
// Loading order (koanf v2), later layers win:
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/figure/config.yaml)
//  3. Environment variables (see envTransformFunc)
package config

import "time"

// Config is the complete photobooth configuration.
type Config struct {
	Device     DeviceConfig     `koanf:"device"`
	Store      StoreConfig      `koanf:"store"`
	Media      MediaConfig      `koanf:"media"`
	Remote     RemoteConfig     `koanf:"remote"`
	Sync       SyncConfig       `koanf:"sync"`
	Upload     UploadConfig     `koanf:"upload"`
	Paper      PaperConfig      `koanf:"paper"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Devices    DevicesConfig    `koanf:"devices"`
	API        APIConfig        `koanf:"api"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// DeviceConfig identifies this photobooth to the remote.
type DeviceConfig struct {
	ID string `koanf:"id"`

	// Timezone is used when no place is configured yet.
	Timezone string `koanf:"timezone"`
}

// StoreConfig configures the BadgerDB durable store.
type StoreConfig struct {
	Path               string        `koanf:"path"`
	SyncWrites         bool          `koanf:"sync_writes"`
	CompactionInterval time.Duration `koanf:"compaction_interval"`
	GCRatio            float64       `koanf:"gc_ratio"`
	OrphanGracePeriod  time.Duration `koanf:"orphan_grace_period"`
	WriteRetryAttempts int           `koanf:"write_retry_attempts"`
	WriteRetryDelay    time.Duration `koanf:"write_retry_delay"`
	CloseTimeout       time.Duration `koanf:"close_timeout"`
}

// MediaConfig holds on-disk media locations.
type MediaConfig struct {
	// Dir holds downloaded template images and queued pictures/tickets.
	Dir string `koanf:"dir"`

	// PictureMaxWidth bounds the captured picture after orientation fix.
	PictureMaxWidth int `koanf:"picture_max_width"`
}

// RemoteConfig configures the remote API client.
type RemoteConfig struct {
	BaseURL               string        `koanf:"base_url"`
	Token                 string        `koanf:"token"`
	Timeout               time.Duration `koanf:"timeout"`
	UploadTimeout         time.Duration `koanf:"upload_timeout"`
	DownloadRatePerSecond float64       `koanf:"download_rate_per_second"`
	BreakerTimeout        time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests    uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio   float64       `koanf:"breaker_failure_ratio"`
	MaxResponseBytes      int64         `koanf:"max_response_bytes"`
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	Interval       time.Duration `koanf:"interval"`
	CodesLowWater  int           `koanf:"codes_low_water"`
	CodesBatchSize int           `koanf:"codes_batch_size"`
	ReportInterval time.Duration `koanf:"report_interval"`
	InitialTimeout time.Duration `koanf:"initial_timeout"`
}

// UploadConfig configures the pending upload worker.
type UploadConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// PaperConfig configures the paper level gauge.
type PaperConfig struct {
	// PixelsPerPercent converts printed ticket length to gauge percent.
	PixelsPerPercent float64 `koanf:"pixels_per_percent"`

	// RefillLevel is the gauge value after a paper reload.
	RefillLevel float64 `koanf:"refill_level"`
}

// PipelineConfig configures the trigger pipeline.
type PipelineConfig struct {
	// Rasterizer is the HTML to image command, e.g. wkhtmltoimage.
	Rasterizer     string        `koanf:"rasterizer"`
	RasterizerArgs []string      `koanf:"rasterizer_args"`
	RenderTimeout  time.Duration `koanf:"render_timeout"`
	CaptureTimeout time.Duration `koanf:"capture_timeout"`
	PrintTimeout   time.Duration `koanf:"print_timeout"`
	// DoorPulse opens the door relay after a print. Zero disables it.
	DoorPulse time.Duration `koanf:"door_pulse"`
	// TriggerCooldown drops edges arriving faster than this.
	TriggerCooldown time.Duration `koanf:"trigger_cooldown"`
}

// DevicesConfig points device drivers at their hardware.
type DevicesConfig struct {
	USBRoot      string        `koanf:"usb_root"`
	GPIORoot     string        `koanf:"gpio_root"`
	PrinterPath  string        `koanf:"printer_path"`
	RTCPath      string        `koanf:"rtc_path"`
	GPhoto2      string        `koanf:"gphoto2"`
	ButtonPin    int           `koanf:"button_pin"`
	DoorPin      int           `koanf:"door_pin"`
	ButtonPoll   time.Duration `koanf:"button_poll"`
	ButtonActive string        `koanf:"button_active"` // low or high
}

// APIConfig configures the local HTTP API.
type APIConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Listen          string        `koanf:"listen"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig tunes the suture supervisor tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}
