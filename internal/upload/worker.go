// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package upload drains the queue of tickets whose immediate upload failed.
//
// Records are sent oldest first. A delivered record is flagged before it is
// deleted, so a crash in between never sends it twice. Records the remote
// rejects, and records whose files are gone, are dropped. Any other failure
// stops the drain until the next run.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Postcard/figure-raspbian-sub000/internal/events"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
	"github.com/Postcard/figure-raspbian-sub000/internal/models"
	"github.com/Postcard/figure-raspbian-sub000/internal/remote"
	"github.com/Postcard/figure-raspbian-sub000/internal/store"
)

// Uploader sends a ticket to the remote.
type Uploader interface {
	UploadTicket(ctx context.Context, p *models.PendingUpload) error
}

// Result counts what one drain did.
type Result struct {
	Uploaded int       `json:"uploaded"`
	Rejected int       `json:"rejected"`
	Dropped  int       `json:"dropped"`
	Failed   bool      `json:"failed"`
	Finished time.Time `json:"finished"`
}

// Worker drains the pending upload queue periodically and after each
// successful sync.
type Worker struct {
	store    *store.Store
	uploader Uploader
	bus      *events.Bus
	interval time.Duration

	drainMu sync.Mutex
	kick    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	last    Result
}

// NewWorker creates a worker. bus may be nil.
func NewWorker(st *store.Store, uploader Uploader, bus *events.Bus, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		store:    st,
		uploader: uploader,
		bus:      bus,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Drain sends queued tickets until the queue is empty or a transient
// failure occurs. Concurrent calls run one after the other.
func (w *Worker) Drain(ctx context.Context) (Result, error) {
	w.drainMu.Lock()
	defer w.drainMu.Unlock()

	res, err := w.drain(ctx)
	res.Finished = time.Now()
	res.Failed = err != nil

	w.mu.Lock()
	w.last = res
	w.mu.Unlock()

	if n, cerr := w.store.CountPendingUploads(ctx); cerr == nil {
		metrics.PendingUploads.Set(float64(n))
	}
	if res.Uploaded+res.Rejected+res.Dropped > 0 || err != nil {
		logging.Ctx(ctx).Info().
			Int("uploaded", res.Uploaded).
			Int("rejected", res.Rejected).
			Int("dropped", res.Dropped).
			AnErr("error", err).
			Msg("Upload queue drained")
	}
	return res, err
}

func (w *Worker) drain(ctx context.Context) (Result, error) {
	var res Result
	log := logging.Ctx(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		p, err := w.store.OldestPendingUpload(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return res, nil
		case errors.Is(err, store.ErrCorruptRecord):
			log.Warn().Err(err).Msg("Dropping unreadable pending upload")
			if err := w.delete(ctx, p.ID); err != nil {
				return res, err
			}
			metrics.RecordUpload("drain", "corrupt")
			res.Dropped++
			continue
		case err != nil:
			return res, fmt.Errorf("read pending upload: %w", err)
		}

		if p.Uploaded {
			if err := w.delete(ctx, p.ID); err != nil {
				return res, err
			}
			res.Uploaded++
			continue
		}

		err = w.uploader.UploadTicket(ctx, p)
		switch {
		case err == nil:
			metrics.RecordUpload("drain", "success")
			if err := w.store.MarkUploaded(ctx, p.ID); err != nil {
				return res, fmt.Errorf("mark upload %s: %w", p.ID, err)
			}
			if err := w.delete(ctx, p.ID); err != nil {
				return res, err
			}
			res.Uploaded++
		case remote.IsPermanentRejection(err):
			metrics.RecordUpload("drain", "rejected")
			log.Warn().Err(err).Str("upload_id", p.ID).Str("code", p.Code).Msg("Remote rejected ticket, dropping it")
			if err := w.delete(ctx, p.ID); err != nil {
				return res, err
			}
			res.Rejected++
		case errors.Is(err, remote.ErrLocalFile):
			metrics.RecordUpload("drain", "corrupt")
			log.Warn().Err(err).Str("upload_id", p.ID).Msg("Ticket files unreadable, dropping upload")
			if err := w.delete(ctx, p.ID); err != nil {
				return res, err
			}
			res.Dropped++
		default:
			metrics.RecordUpload("drain", "failed")
			if rerr := w.store.RecordUploadFailure(context.WithoutCancel(ctx), p.ID, err); rerr != nil {
				log.Warn().Err(rerr).Str("upload_id", p.ID).Msg("Failed to record upload failure")
			}
			return res, fmt.Errorf("upload %s: %w", p.ID, err)
		}
	}
}

// delete removes a record and its files. A record already gone is not an
// error.
func (w *Worker) delete(ctx context.Context, id string) error {
	err := w.store.DeletePendingUpload(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete upload %s: %w", id, err)
	}
	return nil
}

// Kick requests a drain without waiting for the next tick.
func (w *Worker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// LastResult returns the outcome of the latest drain.
func (w *Worker) LastResult() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Start runs a drain at once, then every interval, on Kick and after each
// successful sync.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("upload worker is already running")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop()

	if w.bus != nil {
		w.wg.Add(1)
		go w.syncListener()
	}

	logging.Info().Dur("interval", w.interval).Msg("Upload worker started")
	return nil
}

// Stop stops the loop and waits for an in-flight drain.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("upload worker is not running")
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	logging.Info().Msg("Upload worker stopped")
	return nil
}

// IsRunning reports whether the loop is active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		ctx := logging.ContextWithNewCorrelationID(w.ctx)
		if _, err := w.Drain(ctx); err != nil && w.ctx.Err() == nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Upload drain stopped, retrying later")
		}

		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		case <-w.kick:
		}
	}
}

func (w *Worker) syncListener() {
	defer w.wg.Done()

	err := w.bus.NewHandler(events.TopicSyncCompleted).
		Handle(func(_ context.Context, msg *message.Message) error {
			ev, err := events.Decode[events.SyncCompleted](msg)
			if err != nil {
				return err
			}
			if ev.Error == "" {
				w.Kick()
			}
			return nil
		}).
		Run(w.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn().Err(err).Msg("Upload worker sync listener stopped")
	}
}
