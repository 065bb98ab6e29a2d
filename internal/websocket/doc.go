// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package websocket pushes photobooth status to kiosk screens.
//
// A Hub keeps the connected clients and fans out messages. A Bridge
// subscribes to the in-process event bus and forwards pipeline state,
// printed tickets, paper level and sync results to the hub.
//
// Messages are JSON objects:
//
//	{"type": "state", "data": {"state": "capturing", "time": "..."}}
//
// Clients may send {"type": "ping"} and receive {"type": "pong"}.
package websocket
