// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package logging

import "log/slog"

func sloggerFrom(h slog.Handler) *slog.Logger { return slog.New(h) }
