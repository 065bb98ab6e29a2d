// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Postcard/figure-raspbian-sub000/internal/devices"
)

// StartStopManager is a component that spawns its own loops on Start and
// waits for them in Stop. The sync engine and the upload worker are
// managers.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// ManagerService runs a StartStopManager.
type ManagerService struct {
	manager StartStopManager
	name    string
}

// NewManagerService wraps manager under name.
func NewManagerService(name string, manager StartStopManager) *ManagerService {
	return &ManagerService{manager: manager, name: name}
}

// NewSyncService wraps the sync engine.
func NewSyncService(engine StartStopManager) *ManagerService {
	return NewManagerService("sync-engine", engine)
}

// NewUploadService wraps the upload worker.
func NewUploadService(worker StartStopManager) *ManagerService {
	return NewManagerService("upload-worker", worker)
}

// Serve implements suture.Service.
func (s *ManagerService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	// Stop blocks until the manager loops return.
	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *ManagerService) String() string {
	return s.name
}

// StartStopper is a manager whose Stop cannot fail, like the store
// compactor.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// CompactorService runs the store compactor.
type CompactorService struct {
	compactor StartStopper
	name      string
}

// NewCompactorService wraps compactor.
func NewCompactorService(compactor StartStopper) *CompactorService {
	return &CompactorService{compactor: compactor, name: "store-compactor"}
}

// Serve implements suture.Service.
func (s *CompactorService) Serve(ctx context.Context) error {
	if err := s.compactor.Start(ctx); err != nil {
		return fmt.Errorf("store compactor start failed: %w", err)
	}
	<-ctx.Done()
	if s.compactor.IsRunning() {
		s.compactor.Stop()
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *CompactorService) String() string {
	return s.name
}

// RunnerService runs a blocking function until ctx is done.
type RunnerService struct {
	run  func(ctx context.Context) error
	name string
}

// ContextHub is the websocket hub loop.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// Runner is a blocking component, like the event bridge.
type Runner interface {
	Run(ctx context.Context) error
}

// ButtonWatcher fires triggers from button edges.
type ButtonWatcher interface {
	WatchButton(ctx context.Context, button devices.Button) error
}

// NewRunnerService wraps run under name.
func NewRunnerService(name string, run func(ctx context.Context) error) *RunnerService {
	return &RunnerService{run: run, name: name}
}

// NewWebSocketHubService wraps the websocket hub.
func NewWebSocketHubService(hub ContextHub) *RunnerService {
	return NewRunnerService("websocket-hub", hub.RunWithContext)
}

// NewBridgeService wraps the event bus to websocket bridge.
func NewBridgeService(bridge Runner) *RunnerService {
	return NewRunnerService("event-bridge", bridge.Run)
}

// NewButtonService watches button and fires triggers through watcher.
func NewButtonService(watcher ButtonWatcher, button devices.Button) *RunnerService {
	return NewRunnerService("button-watcher", func(ctx context.Context) error {
		return watcher.WatchButton(ctx, button)
	})
}

// Serve implements suture.Service. A run that returns before ctx is done
// without an error is reported as a failure so the supervisor restarts it.
func (s *RunnerService) Serve(ctx context.Context) error {
	err := s.run(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s exited unexpectedly", s.name)
	}
	return fmt.Errorf("%s failed: %w", s.name, err)
}

// String implements fmt.Stringer.
func (s *RunnerService) String() string {
	return s.name
}
