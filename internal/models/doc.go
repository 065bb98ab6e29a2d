// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

/*
Package models defines the data structures shared by the store, the sync
engine, the trigger pipeline and the local API.

Installation models (Installation, Place, Event, TicketTemplate and the
template variables) mirror the remote API representation. The JSON encoding
is the same for the wire and for the durable store so a snapshot fetched
from the remote can be persisted as is once media paths are filled in.

Validation tags are checked by internal/validation on every payload
received from the remote; a snapshot failing validation is treated as a
malformed remote response and never reaches the store.
*/
package models
