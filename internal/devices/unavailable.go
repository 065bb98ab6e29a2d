// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package devices

import (
	"context"
	"fmt"
	"time"
)

// Placeholders installed by NewRegistry for hardware that was not detected.

type noCamera struct{}

func (noCamera) Capture(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("%w: %w", ErrCapture, ErrNoDevice)
}

// noPrinter never reports paper, so the pipeline never captures.
type noPrinter struct{}

func (noPrinter) PaperPresent(context.Context) (bool, error) { return false, nil }

func (noPrinter) PrintImage(context.Context, []byte) (int, error) {
	return 0, ErrNoDevice
}

type noDoor struct{}

func (noDoor) Open(context.Context) error  { return nil }
func (noDoor) Close(context.Context) error { return nil }

type noButton struct{}

func (noButton) Watch(ctx context.Context, _ func()) error {
	<-ctx.Done()
	return nil
}

type noClock struct{}

func (noClock) ReadTime() (time.Time, error) { return time.Time{}, ErrNoDevice }
func (noClock) WriteTime(time.Time) error    { return ErrNoDevice }
