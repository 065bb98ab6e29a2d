// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/figure/config.yaml",
	"/etc/figure/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Timezone: "Europe/Paris",
		},
		Store: StoreConfig{
			Path:               "/var/lib/figure/store",
			SyncWrites:         true,
			CompactionInterval: 30 * time.Minute,
			GCRatio:            0.5,
			OrphanGracePeriod:  10 * time.Minute,
			WriteRetryAttempts: 5,
			WriteRetryDelay:    20 * time.Millisecond,
			CloseTimeout:       10 * time.Second,
		},
		Media: MediaConfig{
			Dir:             "/var/lib/figure/media",
			PictureMaxWidth: 1024,
		},
		Remote: RemoteConfig{
			BaseURL:               "https://api.figuredevices.com",
			Timeout:               30 * time.Second,
			UploadTimeout:         60 * time.Second,
			DownloadRatePerSecond: 4,
			BreakerTimeout:        60 * time.Second,
			BreakerMinRequests:    10,
			BreakerFailureRatio:   0.6,
			MaxResponseBytes:      8 << 20,
		},
		Sync: SyncConfig{
			Interval:       time.Minute,
			CodesLowWater:  1000,
			CodesBatchSize: 10000,
			ReportInterval: 10 * time.Minute,
			InitialTimeout: 20 * time.Second,
		},
		Upload: UploadConfig{
			Interval: 5 * time.Minute,
		},
		Paper: PaperConfig{
			PixelsPerPercent: 6400,
			RefillLevel:      100,
		},
		Pipeline: PipelineConfig{
			Rasterizer:      "wkhtmltoimage",
			RasterizerArgs:  []string{"--width", "576", "--disable-smart-width", "--enable-local-file-access", "--format", "png", "--quiet"},
			RenderTimeout:   20 * time.Second,
			CaptureTimeout:  15 * time.Second,
			PrintTimeout:    30 * time.Second,
			DoorPulse:       0,
			TriggerCooldown: 2 * time.Second,
		},
		Devices: DevicesConfig{
			USBRoot:      "/sys/bus/usb/devices",
			GPIORoot:     "/sys/class/gpio",
			PrinterPath:  "/dev/usb/lp0",
			RTCPath:      "/dev/rtc0",
			GPhoto2:      "gphoto2",
			ButtonPin:    17,
			DoorPin:      27,
			ButtonPoll:   20 * time.Millisecond,
			ButtonActive: "low",
		},
		API: APIConfig{
			Enabled:         true,
			Listen:          "127.0.0.1:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    90 * time.Second,
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"http://localhost"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load reads defaults, the optional YAML file and the environment, then
// validates the result.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// FIGURE_REMOTE_BASE_URL -> remote.base_url
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths may arrive as comma separated strings from the environment.
var sliceConfigPaths = []string{
	"api.cors_origins",
	"pipeline.rasterizer_args",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variables to config keys. Variables not
// listed here are ignored, which keeps unrelated environment (PATH, HOME)
// out of the config tree.
var envMappings = map[string]string{
	"figure_device_id":                "device.id",
	"figure_timezone":                 "device.timezone",
	"figure_store_path":               "store.path",
	"figure_store_sync_writes":        "store.sync_writes",
	"figure_compaction_interval":      "store.compaction_interval",
	"figure_media_dir":                "media.dir",
	"figure_remote_base_url":          "remote.base_url",
	"figure_remote_token":             "remote.token",
	"figure_remote_timeout":           "remote.timeout",
	"figure_upload_timeout":           "remote.upload_timeout",
	"figure_sync_interval":            "sync.interval",
	"figure_codes_low_water":          "sync.codes_low_water",
	"figure_codes_batch_size":         "sync.codes_batch_size",
	"figure_upload_interval":          "upload.interval",
	"figure_paper_pixels_per_percent": "paper.pixels_per_percent",
	"figure_paper_refill_level":       "paper.refill_level",
	"figure_rasterizer":               "pipeline.rasterizer",
	"figure_rasterizer_args":          "pipeline.rasterizer_args",
	"figure_door_pulse":               "pipeline.door_pulse",
	"figure_printer_path":             "devices.printer_path",
	"figure_button_pin":               "devices.button_pin",
	"figure_door_pin":                 "devices.door_pin",
	"figure_api_enabled":              "api.enabled",
	"figure_api_listen":               "api.listen",
	"figure_cors_origins":             "api.cors_origins",
	"log_level":                       "logging.level",
	"log_format":                      "logging.format",
	"log_caller":                      "logging.caller",
}

// envTransformFunc maps an environment variable name to its config key, or
// "" to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
