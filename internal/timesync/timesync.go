// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package timesync aligns the system clock and the hardware clock at boot.
//
// When the photobooth reached the remote, network time is trusted and saved
// to the RTC. Offline, the system clock is set from the RTC so tickets
// carry a sensible timestamp.
package timesync

import (
	"errors"
	"fmt"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/devices"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
)

// ErrUnsupported is returned where the system clock cannot be set.
var ErrUnsupported = errors.New("setting the system clock is not supported")

// minValid rejects clocks that were never set.
var minValid = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// SystemClock reads and sets the operating system clock.
type SystemClock interface {
	Now() time.Time
	Set(t time.Time) error
}

// OS is the operating system clock.
type OS struct{}

func (OS) Now() time.Time { return time.Now() }

func (OS) Set(t time.Time) error { return setSystemTime(t) }

// Direction tells which clock was updated.
type Direction string

const (
	SavedToRTC    Direction = "system_to_rtc"
	RestoredToSys Direction = "rtc_to_system"
	Skipped       Direction = "skipped"
)

// Boot aligns the clocks. online reports whether the remote was reachable,
// which implies network time is available.
func Boot(online bool, rtc devices.Clock, sys SystemClock) (Direction, error) {
	if online {
		now := sys.Now()
		if now.Before(minValid) {
			logging.Warn().Time("system_time", now).Msg("System clock not set, RTC left untouched")
			return Skipped, nil
		}
		if err := rtc.WriteTime(now); err != nil {
			return Skipped, fmt.Errorf("save time to rtc: %w", err)
		}
		logging.Info().Time("time", now).Msg("System time saved to RTC")
		return SavedToRTC, nil
	}

	t, err := rtc.ReadTime()
	if err != nil {
		return Skipped, fmt.Errorf("read rtc: %w", err)
	}
	if t.Before(minValid) {
		logging.Warn().Time("rtc_time", t).Msg("RTC not set, system clock left untouched")
		return Skipped, nil
	}
	if err := sys.Set(t); err != nil {
		return Skipped, fmt.Errorf("set system time: %w", err)
	}
	logging.Info().Time("time", t).Msg("System time restored from RTC")
	return RestoredToSys, nil
}
