// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDevicesBusy is returned when another trigger holds the devices.
var ErrDevicesBusy = errors.New("devices busy")

// Guard is a non-reentrant single-flight lock over the devices.
type Guard struct {
	mu sync.Mutex
}

// TryRun runs fn while holding the guard, or returns ErrDevicesBusy at once
// when it is held. The guard is released when fn returns or panics.
func (g *Guard) TryRun(fn func() error) error {
	if !g.mu.TryLock() {
		return ErrDevicesBusy
	}
	defer g.mu.Unlock()
	return fn()
}

// Acquire waits for the guard until ctx is done. The caller owns the
// guard afterwards and releases it with the returned func.
func (g *Guard) Acquire(ctx context.Context) (func(), error) {
	if g.mu.TryLock() {
		return g.mu.Unlock, nil
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if g.mu.TryLock() {
				return g.mu.Unlock, nil
			}
		}
	}
}
