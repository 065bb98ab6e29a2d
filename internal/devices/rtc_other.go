// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

//go:build !linux

package devices

import "time"

// RTC is unavailable off linux.
type RTC struct{}

func NewRTC(string) *RTC { return &RTC{} }

func (*RTC) ReadTime() (time.Time, error) { return time.Time{}, ErrNoDevice }
func (*RTC) WriteTime(time.Time) error    { return ErrNoDevice }
