// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package events is the in-process event bus. It carries pipeline state
// changes to the kiosk websocket and asynchronous work requests, such as a
// code pool check, from the trigger pipeline to the sync engine.
//
// Delivery is at most once: events published with no subscriber are
// dropped.
package events

import "time"

// Topics.
const (
	TopicPipelineState = "pipeline.state"
	TopicTicketPrinted = "ticket.printed"
	TopicPaperLevel    = "paper.level"
	TopicCodesCheck    = "codes.check"
	TopicSyncCompleted = "sync.completed"
)

// StateChanged is published on every pipeline state transition.
type StateChanged struct {
	State string    `json:"state"`
	Time  time.Time `json:"time"`
}

// TicketPrinted is published once a ticket left the printer.
type TicketPrinted struct {
	Counter    uint64    `json:"counter"`
	Code       string    `json:"code"`
	PaperLevel float64   `json:"paper_level"`
	OutOfPaper bool      `json:"out_of_paper"`
	Time       time.Time `json:"time"`
}

// PaperLevel is published when the paper gauge changes outside a print,
// e.g. on refill.
type PaperLevel struct {
	Level float64   `json:"level"`
	Time  time.Time `json:"time"`
}

// CodesCheck asks the sync engine to top up the code pool.
type CodesCheck struct {
	Reason string `json:"reason"`
}

// SyncCompleted is published after each reconcile.
type SyncCompleted struct {
	Changed bool      `json:"changed"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}
