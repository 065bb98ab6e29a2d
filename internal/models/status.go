// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package models

import "time"

// APIResponse is the envelope of every local API response.
type APIResponse struct {
	Status string      `json:"status"` // success or error
	Data   interface{} `json:"data,omitempty"`
	Error  *APIError   `json:"error,omitempty"`
	Meta   Metadata    `json:"metadata"`
}

// APIError describes a failed local API call.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Metadata is attached to every APIResponse.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// HealthStatus is returned by /healthz.
type HealthStatus struct {
	Status      string  `json:"status"` // healthy or degraded
	Online      bool    `json:"online"`
	Initialized bool    `json:"initialized"`
	Uptime      float64 `json:"uptime_seconds"`
}

// BoothStatus is returned by /api/v1/status and pushed on the websocket.
type BoothStatus struct {
	PhotoboothID   string     `json:"photobooth_id"`
	Online         bool       `json:"online"`
	Initialized    bool       `json:"initialized"`
	PipelineState  string     `json:"pipeline_state"`
	TicketCounter  uint64     `json:"ticket_counter"`
	PaperLevel     float64    `json:"paper_level"`
	CodesRemaining int        `json:"codes_remaining"`
	PendingUploads int        `json:"pending_uploads"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
	PlaceName      string     `json:"place_name,omitempty"`
	EventName      string     `json:"event_name,omitempty"`
}
