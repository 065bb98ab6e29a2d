// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

/*
Package store is the crash-safe local state of the photobooth, backed by
BadgerDB.

Every logical entity lives under its own key and is written in its own
transaction, so readers never observe a half-applied merge and unrelated
writers (a sync merge of the place, a counter increment from a trigger) do
not block each other:

	installation                    device identity, written by the first sync
	installation/place              *models.Place
	installation/event              *models.Event
	installation/ticket_template    *models.TicketTemplate
	code/<code>                     unclaimed ticket codes
	upload/<uuid v7>                *models.PendingUpload, time ordered
	counter/tickets                 uint64 ticket counter
	gauge/paper                     float64 paper level
	cursor/<variable id>            sequential rotation index

Transactions use Badger's optimistic concurrency. A commit that loses a
race returns ErrWriteConflict and the read-modify-write helpers retry it
through internal/retry with a bounded backoff.

Media files (downloaded template images, captured pictures and rendered
tickets) live under the media directory. A PendingUpload is written only
after its files are durable, and its files are removed only after the
record deletion has committed, so a record never points at a missing file
because of a crash. Files orphaned by a crash between those steps are
removed by the Compactor.

When the database cannot be opened because it is corrupt, Open moves it
aside and starts from an empty store. Accessors of installation entities
then return ErrNotInitialized until the first successful sync.
*/
package store
