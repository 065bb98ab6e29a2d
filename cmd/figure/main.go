// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Postcard/figure-raspbian-sub000/internal/api"
	"github.com/Postcard/figure-raspbian-sub000/internal/config"
	"github.com/Postcard/figure-raspbian-sub000/internal/devices"
	"github.com/Postcard/figure-raspbian-sub000/internal/events"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/pipeline"
	"github.com/Postcard/figure-raspbian-sub000/internal/remote"
	"github.com/Postcard/figure-raspbian-sub000/internal/store"
	"github.com/Postcard/figure-raspbian-sub000/internal/supervisor"
	"github.com/Postcard/figure-raspbian-sub000/internal/supervisor/services"
	figsync "github.com/Postcard/figure-raspbian-sub000/internal/sync"
	"github.com/Postcard/figure-raspbian-sub000/internal/timesync"
	"github.com/Postcard/figure-raspbian-sub000/internal/upload"
	"github.com/Postcard/figure-raspbian-sub000/internal/websocket"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "YAML config file (default: $CONFIG_PATH or the standard locations)")
		logLevel   = pflag.String("log-level", "", "override logging.level")
		enumerate  = pflag.Bool("enumerate", false, "print the detected camera and printer, then exit")
	)
	pflag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(loggingConfig(cfg, *logLevel))

	if *enumerate {
		if err := printCapabilities(os.Stdout, cfg.Devices.USBRoot); err != nil {
			logging.Fatal().Err(err).Msg("Device enumeration failed")
		}
		return
	}

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Figure stopped with an error")
	}
	logging.Info().Msg("Figure stopped")
}

func printCapabilities(w io.Writer, usbRoot string) error {
	caps, err := devices.Enumerate(usbRoot)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "camera:  %s\nprinter: %s\n", caps.Camera, caps.Printer)
	for _, d := range caps.Devices {
		fmt.Fprintf(w, "  %s\n", d)
	}
	return nil
}

//nolint:gocyclo // sequential wiring
func run(cfg *config.Config) error {
	logging.Info().
		Str("photobooth", cfg.Device.ID).
		Str("remote", cfg.Remote.BaseURL).
		Str("store", cfg.Store.Path).
		Msg("Starting Figure")

	st, err := store.Open(storeConfig(cfg))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	if st.Recovered() {
		logging.Warn().Msg("Store was unreadable and has been reset, waiting for the first sync")
	}

	bus := events.NewBus(eventBuffer)
	defer func() { _ = bus.Close() }()

	caps, err := devices.Enumerate(cfg.Devices.USBRoot)
	if err != nil {
		logging.Warn().Err(err).Msg("USB enumeration failed, running without camera and printer")
	}
	reg := devices.NewRegistry(caps, cfg.Devices)

	client := remote.NewClient(remoteConfig(cfg))
	engine := figsync.NewEngine(st, client, bus, syncConfig(cfg))
	worker := upload.NewWorker(st, client, bus, cfg.Upload.Interval)

	booth := pipeline.New(pipelineConfig(cfg), pipeline.Deps{
		Store:      st,
		Devices:    reg,
		Rasterizer: pipeline.NewExecRasterizer(cfg.Pipeline.Rasterizer, cfg.Pipeline.RasterizerArgs),
		Uploader:   client,
		Codes:      engine,
		Bus:        bus,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bootSync(ctx, cfg, engine, reg.Clock)

	hub := websocket.NewHub()
	tree := supervisor.NewTree(logging.NewSlogLoggerFor("supervisor"), supervisor.TreeConfigFrom(cfg.Supervisor))
	tree.AddDataService(services.NewCompactorService(store.NewCompactor(st)))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewBridgeService(websocket.NewBridge(bus, hub)))
	tree.AddSyncService(services.NewSyncService(engine))
	tree.AddSyncService(services.NewUploadService(worker))
	tree.AddDeviceService(services.NewButtonService(booth, reg.Button))

	if cfg.API.Enabled {
		handler := api.NewHandler(st, booth, engine, worker)
		server := api.NewServer(cfg.API, api.NewRouter(handler, hub, cfg.API))
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("Local API enabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().
		Str("camera", caps.Camera.String()).
		Str("printer", caps.Printer.String()).
		Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	treeDone := false
	select {
	case <-ctx.Done():
	case treeErr = <-errCh:
		treeDone = true
		cancel()
	}

	// Let the trigger in flight finish and its upload settle before the
	// store closes.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Supervisor.ShutdownTimeout)
	defer shutdownCancel()
	if err := booth.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Pipeline shutdown incomplete")
	}

	if !treeDone {
		treeErr = <-errCh
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		return treeErr
	}
	return nil
}

// bootSync runs the first reconcile, bounded by the initial timeout, then
// aligns the system clock and the RTC according to its outcome.
func bootSync(ctx context.Context, cfg *config.Config, engine *figsync.Engine, clock devices.Clock) {
	syncCtx, cancel := context.WithTimeout(logging.ContextWithNewCorrelationID(ctx), cfg.Sync.InitialTimeout)
	defer cancel()

	if err := engine.SyncOnce(syncCtx); err != nil {
		logging.Warn().Err(err).Msg("Boot sync failed, starting offline")
	}

	online := engine.Online()
	dir, err := timesync.Boot(online, clock, timesync.OS{})
	if err != nil {
		logging.Warn().Err(err).Bool("online", online).Msg("Clock synchronisation failed")
		return
	}
	logging.Info().Bool("online", online).Str("direction", string(dir)).Msg("Clock synchronised")
}
