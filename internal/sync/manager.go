// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package sync

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Postcard/figure-raspbian-sub000/internal/events"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
)

// Start runs the periodic reconcile, the device report and the code check
// listener until Stop or ctx is done. The first reconcile runs at once.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("sync engine is already running")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true
	e.mu.Unlock()

	// Add before starting so Stop cannot Wait early.
	e.wg.Add(2)
	go e.syncLoop()
	go e.reportLoop()

	if e.bus != nil {
		e.wg.Add(1)
		go e.codesCheckLoop()
	}

	logging.Info().
		Dur("interval", e.cfg.Interval).
		Int("codes_low_water", e.cfg.CodesLowWater).
		Msg("Sync engine started")
	return nil
}

// Stop stops the loops and waits for in-flight work.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("sync engine is not running")
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
	logging.Info().Msg("Sync engine stopped")
	return nil
}

// IsRunning reports whether the loops are active.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *Engine) syncLoop() {
	defer e.wg.Done()

	run := func() {
		ctx := logging.ContextWithNewCorrelationID(e.ctx)
		// SyncOnce logs its own failures.
		_ = e.SyncOnce(ctx)
	}
	run()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (e *Engine) reportLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if err := e.ReportDevice(e.ctx); err != nil {
				logging.Warn().Err(err).Msg("Device report failed")
			}
		}
	}
}

// codesCheckLoop serves code check requests published by the pipeline.
func (e *Engine) codesCheckLoop() {
	defer e.wg.Done()

	h := e.bus.NewHandler(events.TopicCodesCheck).Handle(func(ctx context.Context, msg *message.Message) error {
		req, err := events.Decode[events.CodesCheck](msg)
		if err != nil {
			return err
		}
		logging.Ctx(ctx).Debug().Str("reason", req.Reason).Msg("Code check requested")
		_, err = e.ClaimNewCodesIfNecessary(ctx)
		return err
	})
	if err := h.Run(e.ctx); err != nil && e.ctx.Err() == nil {
		logging.Error().Err(err).Msg("Code check listener stopped")
	}
}

// macAddresses returns the hardware addresses of the non-loopback
// interfaces, sorted.
func macAddresses() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to list network interfaces")
		return nil
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		macs = append(macs, iface.HardwareAddr.String())
	}
	sort.Strings(macs)
	return macs
}
