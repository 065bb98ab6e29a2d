// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package api serves the local operator API of the booth: health, status,
// manual trigger, paper refill, on-demand sync, Prometheus metrics and the
// kiosk websocket.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Postcard/figure-raspbian-sub000/internal/config"
	"github.com/Postcard/figure-raspbian-sub000/internal/websocket"
)

// NewRouter wires the routes. hub may be nil to disable /ws.
func NewRouter(h *Handler, hub *websocket.Hub, cfg config.APIConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg.CORSOrigins))
	r.Use(Instrument)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	if hub != nil {
		r.Get("/ws", websocket.Handler(hub, originChecker(cfg.CORSOrigins)))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(cfg.RateLimitReqs, cfg.RateLimitWindow))

		r.Get("/status", h.Status)
		r.Post("/trigger", h.Trigger)
		r.Post("/paper/refill", h.RefillPaper)
		r.Post("/sync", h.Sync)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}

// NewServer returns the HTTP server for handler. Serving and shutdown are
// left to the supervisor.
func NewServer(cfg config.APIConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
}
