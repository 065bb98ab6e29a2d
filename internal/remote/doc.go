// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

/*
Package remote is the HTTP client of the Figure backend.

Endpoints:
  - GET   /photobooths/{id}/installation  installation snapshot
  - POST  /tickets                        multipart picture + ticket + metadata
  - POST  /codes/claim                    {"number": n} -> {"codes": [...]}
  - PATCH /photobooths/{id}               device report
  - GET   <media url>                     template images

Every call runs behind a sony/gobreaker circuit breaker. Errors are
classified for the caller:
  - ErrRemoteUnavailable: transport failure, timeout, 5xx, open breaker
  - *RejectedError (matches ErrRemoteRejected): any 4xx. 401, 403 and
    404 are Unauthorized: they reject the booth, not the request
  - ErrMalformedResponse: undecodable or invalid payload
  - ErrLocalFile: an upload file could not be read

A 4xx does not count against the breaker.
*/
package remote
