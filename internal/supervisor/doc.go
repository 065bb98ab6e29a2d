// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

/*
Package supervisor runs the long-lived components of the booth under a
suture v4 supervisor tree.

Every component is wrapped by a service from the services subpackage and
added to one of five layers:

	figure (root)
	├── data-layer       store compactor
	├── messaging-layer  event bridge, websocket hub
	├── sync-layer       sync engine, upload worker
	├── devices-layer    button watcher
	└── api-layer        local HTTP server

A service that returns an error or panics is restarted with backoff by
its layer supervisor. Supervisor events are logged through sutureslog.

The trigger pipeline itself is not a service: it is driven by the button
watcher and the API and is shut down by main after the tree stops.

Usage:

	tree := supervisor.NewTree(logging.NewSlogLoggerFor("supervisor"), supervisor.TreeConfigFrom(cfg.Supervisor))
	tree.AddSyncService(services.NewSyncService(engine))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
	errCh := tree.ServeBackground(ctx)
*/
package supervisor
