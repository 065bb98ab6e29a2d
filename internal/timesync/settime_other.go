// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

//go:build !linux

package timesync

import "time"

func setSystemTime(time.Time) error { return ErrUnsupported }
