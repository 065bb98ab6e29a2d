// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/devices"
	"github.com/Postcard/figure-raspbian-sub000/internal/models"
	"github.com/Postcard/figure-raspbian-sub000/internal/pipeline"
	"github.com/Postcard/figure-raspbian-sub000/internal/store"
	figsync "github.com/Postcard/figure-raspbian-sub000/internal/sync"
)

// Booth runs triggers.
type Booth interface {
	State() pipeline.State
	Trigger(ctx context.Context) (*pipeline.Ticket, error)
	RefillPaper(ctx context.Context) (float64, error)
}

// Syncer reconciles with the backend on demand.
type Syncer interface {
	SyncOnce(ctx context.Context) error
	Status() figsync.Status
}

// UploadKicker wakes the upload worker.
type UploadKicker interface {
	Kick()
}

// Handler serves the local operator API.
type Handler struct {
	store   *store.Store
	booth   Booth
	syncer  Syncer
	uploads UploadKicker
	started time.Time
}

// NewHandler creates a Handler. uploads may be nil.
func NewHandler(st *store.Store, booth Booth, syncer Syncer, uploads UploadKicker) *Handler {
	return &Handler{
		store:   st,
		booth:   booth,
		syncer:  syncer,
		uploads: uploads,
		started: time.Now(),
	}
}

// Health reports liveness. The booth is degraded until the first sync
// stored an installation.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	initialized := h.store.Initialized()
	status := "healthy"
	if !initialized {
		status = "degraded"
	}
	respondData(w, r, http.StatusOK, models.HealthStatus{
		Status:      status,
		Online:      h.syncer.Status().Online,
		Initialized: initialized,
		Uptime:      time.Since(h.started).Seconds(),
	})
}

// Status returns the booth counters and sync state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.boothStatus(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORE_ERROR", "Failed to read booth status", err)
		return
	}
	respondData(w, r, http.StatusOK, status)
}

func (h *Handler) boothStatus(ctx context.Context) (*models.BoothStatus, error) {
	syncStatus := h.syncer.Status()
	status := &models.BoothStatus{
		Online:        syncStatus.Online,
		Initialized:   h.store.Initialized(),
		PipelineState: string(h.booth.State()),
	}
	if !syncStatus.LastSync.IsZero() {
		last := syncStatus.LastSync
		status.LastSync = &last
	}

	var err error
	if status.TicketCounter, err = h.store.TicketCounter(ctx); err != nil {
		return nil, err
	}
	if status.PaperLevel, err = h.store.PaperLevel(ctx); err != nil {
		return nil, err
	}
	if status.CodesRemaining, err = h.store.CountCodes(ctx); err != nil {
		return nil, err
	}
	if status.PendingUploads, err = h.store.CountPendingUploads(ctx); err != nil {
		return nil, err
	}

	if status.Initialized {
		inst, err := h.store.Installation(ctx)
		if err != nil {
			return nil, err
		}
		status.PhotoboothID = inst.PhotoboothID
		if inst.Place != nil {
			status.PlaceName = inst.Place.Name
		}
		if inst.Event != nil {
			status.EventName = inst.Event.Name
		}
	}
	return status, nil
}

// Trigger runs one trigger and returns the recorded ticket.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	// A disconnecting client must not abort a capture in progress.
	ticket, err := h.booth.Trigger(context.WithoutCancel(r.Context()))
	switch {
	case err == nil && ticket == nil:
		respondError(w, r, http.StatusConflict, "DEVICES_BUSY", "Another trigger is in progress", nil)
	case err == nil:
		respondData(w, r, http.StatusOK, ticket)
	case errors.Is(err, pipeline.ErrNoPaper):
		respondError(w, r, http.StatusConflict, "NO_PAPER", "The printer has no paper", nil)
	case errors.Is(err, store.ErrNotInitialized), errors.Is(err, pipeline.ErrNoTemplate):
		respondError(w, r, http.StatusServiceUnavailable, "NOT_INITIALIZED", "The photobooth is not configured yet", nil)
	case errors.Is(err, pipeline.ErrShutdown):
		respondError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "The photobooth is shutting down", nil)
	case errors.Is(err, devices.ErrCapture):
		respondError(w, r, http.StatusBadGateway, "CAPTURE_FAILED", "The camera failed to capture", err)
	default:
		respondError(w, r, http.StatusInternalServerError, "TRIGGER_FAILED", "Trigger failed", err)
	}
}

type paperResponse struct {
	PaperLevel float64 `json:"paper_level"`
}

// RefillPaper resets the paper gauge.
func (h *Handler) RefillPaper(w http.ResponseWriter, r *http.Request) {
	level, err := h.booth.RefillPaper(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORE_ERROR", "Failed to refill paper", err)
		return
	}
	respondData(w, r, http.StatusOK, paperResponse{PaperLevel: level})
}

// Sync reconciles at once and wakes the upload worker on success.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.SyncOnce(r.Context()); err != nil {
		respondError(w, r, http.StatusBadGateway, "SYNC_FAILED", "Synchronisation failed", err)
		return
	}
	if h.uploads != nil {
		h.uploads.Kick()
	}
	respondData(w, r, http.StatusOK, h.syncer.Status())
}
