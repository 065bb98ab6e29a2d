// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package pipeline

import (
	"context"
	"fmt"

	"github.com/Postcard/figure-raspbian-sub000/internal/devices"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
	"github.com/Postcard/figure-raspbian-sub000/internal/models"
)

// startUpload sends the ticket in the background. The upload keeps the
// correlation id of the trigger but not its cancellation.
func (p *Pipeline) startUpload(ctx context.Context, u *models.PendingUpload) {
	correlationID := logging.CorrelationIDFromContext(ctx)
	p.uploads.Add(1)
	go func() {
		defer p.uploads.Done()
		p.upload(logging.ContextWithCorrelationID(p.bgCtx, correlationID), u)
	}()
}

// upload sends one ticket. On failure the ticket is persisted as a
// PendingUpload for the upload worker.
func (p *Pipeline) upload(ctx context.Context, u *models.PendingUpload) {
	log := logging.Ctx(ctx)

	var err error
	if p.deps.Uploader != nil {
		err = p.sendTicket(ctx, u)
		if err == nil {
			metrics.RecordUpload("immediate", "success")
			p.deps.Store.RemoveFiles(u.PicturePath, u.TicketPath)
			log.Debug().Str("upload_id", u.ID).Msg("Ticket uploaded")
			return
		}
		metrics.RecordUpload("immediate", "failed")
		u.Attempts = 1
		u.LastError = err.Error()
	}

	// Persist even when shutdown canceled the upload.
	if perr := p.deps.Store.EnqueuePendingUpload(context.WithoutCancel(ctx), u); perr != nil {
		log.Error().Err(perr).Str("upload_id", u.ID).Msg("Failed to queue ticket upload, ticket lost")
		return
	}
	log.Warn().Err(err).Str("upload_id", u.ID).Msg("Ticket upload queued for retry")
}

// sendTicket calls the uploader, turning a panic into an error so the
// ticket is still queued.
func (p *Pipeline) sendTicket(ctx context.Context, u *models.PendingUpload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: upload: %v", ErrPanic, r)
		}
	}()
	return p.deps.Uploader.UploadTicket(ctx, u)
}

// WatchButton triggers the pipeline on every press of button until ctx is
// done.
func (p *Pipeline) WatchButton(ctx context.Context, button devices.Button) error {
	logging.Info().Msg("Watching trigger button")
	return button.Watch(ctx, p.TriggerAsync)
}
