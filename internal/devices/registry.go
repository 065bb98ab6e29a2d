// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package devices

import (
	"github.com/Postcard/figure-raspbian-sub000/internal/config"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
)

// Registry holds the device drivers of this photobooth. It is built once
// at boot and passed to the pipeline and the button watcher.
type Registry struct {
	Capabilities Capabilities
	Camera       Camera
	Printer      Printer
	Door         Door
	Button       Button
	Clock        Clock
}

// NewRegistry builds drivers for the detected capabilities. Hardware that
// is absent or fails to initialize is replaced by a placeholder: a missing
// printer reports no paper and a missing camera fails every capture.
func NewRegistry(caps Capabilities, cfg config.DevicesConfig) *Registry {
	r := &Registry{
		Capabilities: caps,
		Camera:       noCamera{},
		Printer:      noPrinter{},
		Door:         noDoor{},
		Button:       noButton{},
		Clock:        noClock{},
	}

	switch caps.Camera {
	case CameraCanonDSLR, CameraNikonDSLR:
		r.Camera = NewGPhoto2Camera(cfg.GPhoto2, caps.Camera)
	case CameraNone:
		logging.Warn().Msg("No camera detected")
	}

	switch caps.Printer {
	case PrinterEpsonTMT20, PrinterCustomVKP80III:
		r.Printer = NewEscPosPrinter(DevicePort(cfg.PrinterPath), ProfileFor(caps.Printer))
	case PrinterNone:
		logging.Warn().Msg("No printer detected")
	}

	if cfg.DoorPin >= 0 {
		door, err := NewGPIODoor(cfg.GPIORoot, cfg.DoorPin)
		if err != nil {
			logging.Warn().Err(err).Int("pin", cfg.DoorPin).Msg("Door relay unavailable")
		} else {
			r.Door = door
		}
	}

	if cfg.ButtonPin >= 0 {
		button, err := NewGPIOButton(cfg.GPIORoot, cfg.ButtonPin, cfg.ButtonPoll, cfg.ButtonActive != "high")
		if err != nil {
			logging.Warn().Err(err).Int("pin", cfg.ButtonPin).Msg("Trigger button unavailable")
		} else {
			r.Button = button
		}
	}

	if cfg.RTCPath != "" {
		r.Clock = NewRTC(cfg.RTCPath)
	}

	logging.Info().
		Str("camera", caps.Camera.String()).
		Str("printer", caps.Printer.String()).
		Int("usb_devices", len(caps.Devices)).
		Msg("Device registry ready")
	return r
}
