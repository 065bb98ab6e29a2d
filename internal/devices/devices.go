// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package devices defines the hardware the trigger pipeline drives and the
// reference drivers behind it.
//
// Hardware is detected once at boot with Enumerate, which maps attached USB
// devices to tagged camera and printer models. NewRegistry dispatches on
// those tags and returns a Registry that is passed explicitly to the
// components that need it.
//
// Drivers:
//   - gphoto2 camera (exec)
//   - ESC/POS raster printer on a USB line printer device
//   - sysfs GPIO door relay and trigger button
//   - /dev/rtc hardware clock (linux)
package devices

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCapture is returned when the camera fails to produce a picture.
	ErrCapture = errors.New("capture failed")

	// ErrOutOfPaper is returned when the printer runs out of paper.
	ErrOutOfPaper = errors.New("printer out of paper")

	// ErrNoDevice is returned by placeholders for hardware that is absent.
	ErrNoDevice = errors.New("device not available")
)

// Camera captures a single picture.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Printer prints rendered tickets.
type Printer interface {
	// PaperPresent reports whether the paper sensor sees paper.
	PaperPresent(ctx context.Context) (bool, error)

	// PrintImage prints an encoded image and returns the printed length in
	// pixels.
	PrintImage(ctx context.Context, img []byte) (int, error)
}

// Door drives the door relay.
type Door interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// Button delivers trigger edges.
type Button interface {
	// Watch calls fn on every debounced press until ctx is done.
	Watch(ctx context.Context, fn func()) error
}

// Clock is a hardware real time clock.
type Clock interface {
	ReadTime() (time.Time, error)
	WriteTime(t time.Time) error
}

// Pulse opens the door for d and closes it again. The door is closed even
// when ctx is canceled during the wait.
func Pulse(ctx context.Context, door Door, d time.Duration) error {
	if err := door.Open(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return door.Close(closeCtx)
}
