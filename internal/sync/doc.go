// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

/*
Package sync reconciles the local store against the Figure backend.

Reconcile merges the remote installation last-modified-wins, independently
for the place, the event and the ticket template:

	remote absent,  local present      delete local
	remote present, local absent       create local
	different ids                      replace local
	same id                            overwrite fields iff remote is newer

Template text and image variables follow the same rule one level deeper.
Variable items and static images are reconciled by set difference on every
run, whatever the timestamps say. Media for new images is downloaded before
anything is written, so a failed reconcile leaves the store as it was, and
an unchanged snapshot causes no write and no download.

ClaimNewCodesIfNecessary tops up the code pool when it falls below the low
water mark and makes no network call otherwise.
*/
package sync
