// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuardTryRun(t *testing.T) {
	var g Guard
	inner := errors.New("inner")

	err := g.TryRun(func() error {
		if err := g.TryRun(func() error { return nil }); !errors.Is(err, ErrDevicesBusy) {
			t.Errorf("nested TryRun() error = %v, want ErrDevicesBusy", err)
		}
		return inner
	})
	if !errors.Is(err, inner) {
		t.Fatalf("TryRun() error = %v", err)
	}

	// Released after a panic.
	func() {
		defer func() { _ = recover() }()
		_ = g.TryRun(func() error { panic("boom") })
	}()
	if err := g.TryRun(func() error { return nil }); err != nil {
		t.Fatalf("guard not released after panic: %v", err)
	}
}

func TestGuardAcquire(t *testing.T) {
	var g Guard
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() on held guard error = %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		release()
	}()
	release2, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release2()
}
