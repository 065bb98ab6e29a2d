// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

/*
Package services adapts the booth components to suture.Service.

Three lifecycle shapes are translated to Serve(ctx) error:

  - Start/Stop managers (ManagerService, CompactorService): Start spawns
    the component loops, Stop waits for them once ctx is done.
  - Blocking runners (RunnerService): the websocket hub, the event bridge
    and the button watcher run until ctx is done. Returning early counts
    as a failure.
  - HTTP servers (HTTPServerService): ListenAndServe with a bounded
    graceful Shutdown.

Every service implements fmt.Stringer so supervisor log lines name it.
*/
package services
