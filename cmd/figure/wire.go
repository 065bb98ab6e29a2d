// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package main

import (
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/config"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/pipeline"
	"github.com/Postcard/figure-raspbian-sub000/internal/remote"
	"github.com/Postcard/figure-raspbian-sub000/internal/store"
	figsync "github.com/Postcard/figure-raspbian-sub000/internal/sync"
)

// eventBuffer is the per-subscriber buffer of the event bus.
const eventBuffer = 64

func storeConfig(cfg *config.Config) store.Config {
	sc := store.DefaultConfig(cfg.Store.Path, cfg.Media.Dir)
	sc.SyncWrites = cfg.Store.SyncWrites
	sc.CompactionInterval = cfg.Store.CompactionInterval
	sc.GCRatio = cfg.Store.GCRatio
	sc.OrphanGracePeriod = cfg.Store.OrphanGracePeriod
	sc.WriteRetryAttempts = cfg.Store.WriteRetryAttempts
	sc.WriteRetryDelay = cfg.Store.WriteRetryDelay
	sc.CloseTimeout = cfg.Store.CloseTimeout
	sc.DefaultPaperLevel = cfg.Paper.RefillLevel
	return sc
}

func remoteConfig(cfg *config.Config) remote.Config {
	return remote.Config{
		BaseURL:               cfg.Remote.BaseURL,
		Token:                 cfg.Remote.Token,
		PhotoboothID:          cfg.Device.ID,
		Timeout:               cfg.Remote.Timeout,
		UploadTimeout:         cfg.Remote.UploadTimeout,
		DownloadRatePerSecond: cfg.Remote.DownloadRatePerSecond,
		BreakerTimeout:        cfg.Remote.BreakerTimeout,
		BreakerMinRequests:    cfg.Remote.BreakerMinRequests,
		BreakerFailureRatio:   cfg.Remote.BreakerFailureRatio,
		MaxResponseBytes:      cfg.Remote.MaxResponseBytes,
	}
}

func syncConfig(cfg *config.Config) figsync.Config {
	return figsync.Config{
		Interval:       cfg.Sync.Interval,
		CodesLowWater:  cfg.Sync.CodesLowWater,
		CodesBatchSize: cfg.Sync.CodesBatchSize,
		ReportInterval: cfg.Sync.ReportInterval,
	}
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		PixelsPerPercent: cfg.Paper.PixelsPerPercent,
		RefillLevel:      cfg.Paper.RefillLevel,
		PictureMaxWidth:  cfg.Media.PictureMaxWidth,
		Location:         location(cfg.Device.Timezone),
		CaptureTimeout:   cfg.Pipeline.CaptureTimeout,
		RenderTimeout:    cfg.Pipeline.RenderTimeout,
		PrintTimeout:     cfg.Pipeline.PrintTimeout,
		DoorPulse:        cfg.Pipeline.DoorPulse,
		Cooldown:         cfg.Pipeline.TriggerCooldown,
	}
}

// location loads the fallback timezone, UTC when unset or unknown.
func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logging.Warn().Err(err).Str("timezone", name).Msg("Unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

func loggingConfig(cfg *config.Config, levelOverride string) logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Logging.Level
	lc.Format = cfg.Logging.Format
	lc.Caller = cfg.Logging.Caller
	if levelOverride != "" {
		lc.Level = levelOverride
	}
	return lc
}
