// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"math/rand/v2"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/devices"
	"github.com/Postcard/figure-raspbian-sub000/internal/events"
	"github.com/Postcard/figure-raspbian-sub000/internal/imaging"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
	"github.com/Postcard/figure-raspbian-sub000/internal/models"
	"github.com/Postcard/figure-raspbian-sub000/internal/store"
)

// run executes the stages of one trigger while the guard is held.
func (p *Pipeline) run(ctx context.Context) (*Ticket, error) {
	log := logging.Ctx(ctx)
	p.setState(ctx, StateGuarding)

	inst, err := p.deps.Store.Installation(ctx)
	if err != nil {
		return nil, err
	}
	if inst.TicketTemplate == nil {
		return nil, ErrNoTemplate
	}
	if err := p.checkPaper(ctx); err != nil {
		return nil, err
	}

	// Capturing
	p.setState(ctx, StateCapturing)
	started := time.Now()
	raw, err := p.capture(ctx)
	metrics.ObserveStage(string(StateCapturing), started)
	if err != nil {
		return nil, err
	}
	taken := time.Now()
	counter, err := p.deps.Store.IncrementTicketCounter(ctx)
	if err != nil {
		return nil, fmt.Errorf("increment ticket counter: %w", err)
	}
	metrics.TicketCounter.Set(float64(counter))

	// Rendering
	p.setState(ctx, StateRendering)
	started = time.Now()
	ticket := &Ticket{ID: store.NewUploadID(), Counter: counter, Taken: taken}
	picturePath, ticketPath := p.deps.Store.PortraitPaths(ticket.ID)
	img, err := p.render(ctx, inst, raw, ticket, picturePath, ticketPath)
	metrics.ObserveStage(string(StateRendering), started)
	if err != nil {
		p.deps.Store.RemoveFiles(picturePath, ticketPath)
		return nil, err
	}

	// Printing
	p.setState(ctx, StatePrinting)
	started = time.Now()
	p.print(ctx, img, ticket)
	metrics.ObserveStage(string(StatePrinting), started)

	// Recording
	p.setState(ctx, StateRecording)
	p.publish(ctx, events.TopicCodesCheck, events.CodesCheck{Reason: "ticket"})
	p.publish(ctx, events.TopicTicketPrinted, events.TicketPrinted{
		Counter:    ticket.Counter,
		Code:       ticket.Code,
		PaperLevel: ticket.PaperLevel,
		OutOfPaper: ticket.OutOfPaper,
		Time:       time.Now(),
	})
	upload := &models.PendingUpload{
		ID:           ticket.ID,
		PicturePath:  picturePath,
		TicketPath:   ticketPath,
		Taken:        taken,
		PhotoboothID: inst.PhotoboothID,
		Code:         ticket.Code,
	}
	if inst.Place != nil {
		upload.PlaceID = inst.Place.ID
	}
	if inst.Event != nil {
		upload.EventID = inst.Event.ID
	}
	p.startUpload(ctx, upload)

	log.Info().
		Uint64("counter", ticket.Counter).
		Str("code", ticket.Code).
		Bool("printed", ticket.Printed).
		Float64("paper_level", ticket.PaperLevel).
		Msg("Ticket recorded")
	return ticket, nil
}

// checkPaper aborts when the sensor sees no paper. When paper is present
// and the gauge is empty, the roll was replaced and the gauge is refilled.
func (p *Pipeline) checkPaper(ctx context.Context) error {
	present, err := p.deps.Devices.Printer.PaperPresent(ctx)
	if err != nil {
		return fmt.Errorf("check paper: %w", err)
	}
	if !present {
		if level, err := p.deps.Store.PaperLevel(ctx); err == nil && level > 0 {
			if _, err := p.deps.Store.SetPaperLevel(ctx, 0); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Msg("Failed to reset paper level")
			}
		}
		return ErrNoPaper
	}

	level, err := p.deps.Store.PaperLevel(ctx)
	if err != nil {
		return fmt.Errorf("read paper level: %w", err)
	}
	if level <= 0 {
		if _, err := p.RefillPaper(ctx); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to refill paper level")
		}
	}
	return nil
}

func (p *Pipeline) capture(ctx context.Context) ([]byte, error) {
	if p.cfg.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.CaptureTimeout)
		defer cancel()
	}
	raw, err := p.deps.Devices.Camera.Capture(ctx)
	if err != nil {
		if errors.Is(err, devices.ErrCapture) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", devices.ErrCapture, err)
	}
	return raw, nil
}

// render prepares the picture, pops a code and produces the ticket image.
// The picture and the ticket are written to their final paths.
func (p *Pipeline) render(ctx context.Context, inst *models.Installation, raw []byte, ticket *Ticket, picturePath, ticketPath string) ([]byte, error) {
	if p.cfg.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RenderTimeout)
		defer cancel()
	}

	picture, err := imaging.PreparePicture(raw, p.cfg.PictureMaxWidth)
	if err != nil {
		return nil, err
	}
	if err := store.WriteFile(picturePath, picture); err != nil {
		return nil, fmt.Errorf("write picture: %w", err)
	}

	code, err := p.popCode(ctx)
	if err != nil {
		return nil, err
	}
	ticket.Code = code

	rc, err := p.renderContext(ctx, inst, ticket, picturePath)
	if err != nil {
		return nil, err
	}
	html, err := p.deps.Renderer.Render(inst.TicketTemplate.HTML, rc)
	if err != nil {
		return nil, err
	}
	img, err := p.deps.Rasterizer.RenderToImage(ctx, html)
	if err != nil {
		return nil, err
	}
	if err := store.WriteFile(ticketPath, img); err != nil {
		return nil, fmt.Errorf("write ticket: %w", err)
	}
	return img, nil
}

// popCode takes a code from the pool, claiming new codes when it is empty.
func (p *Pipeline) popCode(ctx context.Context) (string, error) {
	code, err := p.deps.Store.PopCode(ctx)
	if !errors.Is(err, store.ErrNoCodes) || p.deps.Codes == nil {
		return code, err
	}

	logging.Ctx(ctx).Warn().Msg("Code pool empty, claiming codes")
	if _, err := p.deps.Codes.ClaimNewCodesIfNecessary(ctx); err != nil {
		return "", fmt.Errorf("replenish codes: %w", err)
	}
	return p.deps.Store.PopCode(ctx)
}

func (p *Pipeline) renderContext(ctx context.Context, inst *models.Installation, ticket *Ticket, picturePath string) (RenderContext, error) {
	tpl := inst.TicketTemplate
	loc := p.cfg.Location
	if inst.Place != nil && inst.Place.Timezone != "" || loc == nil {
		loc = inst.Place.Location()
	}
	rc := RenderContext{
		Datetime:    ticket.Taken.In(loc),
		Code:        ticket.Code,
		Counter:     ticket.Counter,
		Picture:     fileURL(picturePath),
		Title:       tpl.Title,
		Description: tpl.Description,
		Texts:       make(map[string]string, len(tpl.TextVariables)),
		Images:      make(map[string]template.URL, len(tpl.ImageVariables)+len(tpl.Images)),
	}
	if inst.Place != nil {
		rc.Place = inst.Place.Name
	}
	if inst.Event != nil {
		rc.Event = inst.Event.Name
	}

	for _, v := range tpl.TextVariables {
		if len(v.Items) == 0 {
			continue
		}
		i, err := p.pick(ctx, v.ID, v.Mode, len(v.Items))
		if err != nil {
			return rc, err
		}
		rc.Texts[v.ID] = v.Items[i].Text
	}
	for _, v := range tpl.ImageVariables {
		if len(v.Items) == 0 {
			continue
		}
		i, err := p.pick(ctx, v.ID, v.Mode, len(v.Items))
		if err != nil {
			return rc, err
		}
		rc.Images[v.ID] = fileURL(v.Items[i].Path)
	}
	for _, img := range tpl.Images {
		rc.Images[img.ID] = fileURL(img.Path)
	}
	return rc, nil
}

// pick selects the item of a variable: the next one in rotation for
// sequential variables, a uniformly random one otherwise.
func (p *Pipeline) pick(ctx context.Context, variableID, mode string, n int) (int, error) {
	if mode == models.ModeSequential {
		i, err := p.deps.Store.NextSequentialIndex(ctx, variableID, n)
		if err != nil {
			return 0, fmt.Errorf("advance variable %s: %w", variableID, err)
		}
		return i, nil
	}
	return rand.IntN(n), nil
}

// print prints the ticket and updates the paper gauge. Print failures do
// not abort the trigger: the ticket is recorded either way.
func (p *Pipeline) print(ctx context.Context, img []byte, ticket *Ticket) {
	log := logging.Ctx(ctx)
	printCtx := ctx
	if p.cfg.PrintTimeout > 0 {
		var cancel context.CancelFunc
		printCtx, cancel = context.WithTimeout(ctx, p.cfg.PrintTimeout)
		defer cancel()
	}

	px, err := p.deps.Devices.Printer.PrintImage(printCtx, img)
	switch {
	case err == nil:
		ticket.Printed = true
		level, err := p.deps.Store.ConsumePaper(ctx, float64(px)/p.cfg.PixelsPerPercent)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to update paper level")
			return
		}
		ticket.PaperLevel = level
		ticket.OutOfPaper = level <= 0
		if ticket.OutOfPaper {
			log.Warn().Msg("Paper gauge empty")
		}
		if p.cfg.DoorPulse > 0 {
			if err := devices.Pulse(ctx, p.deps.Devices.Door, p.cfg.DoorPulse); err != nil {
				log.Warn().Err(err).Msg("Door pulse failed")
			}
		}
	case errors.Is(err, devices.ErrOutOfPaper):
		ticket.Printed = px > 0
		ticket.OutOfPaper = true
		if _, err := p.deps.Store.SetPaperLevel(ctx, 0); err != nil {
			log.Warn().Err(err).Msg("Failed to reset paper level")
		}
		log.Warn().Msg("Printer out of paper")
	default:
		log.Error().Err(err).Msg("Print failed")
		if level, err := p.deps.Store.PaperLevel(ctx); err == nil {
			ticket.PaperLevel = level
		}
	}
}
