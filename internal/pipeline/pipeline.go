// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package pipeline runs the capture, render, print and record sequence of
// one photobooth trigger.
//
// A trigger holds the device guard for its whole run. Triggers arriving
// while the guard is held are dropped. The ticket counter is incremented
// once the camera returned a picture, so a capture always counts even when
// a later stage fails. Uploads run in the background after the guard is
// released; a failed upload is persisted for the upload worker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Postcard/figure-raspbian-sub000/internal/devices"
	"github.com/Postcard/figure-raspbian-sub000/internal/events"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
	"github.com/Postcard/figure-raspbian-sub000/internal/models"
	"github.com/Postcard/figure-raspbian-sub000/internal/store"
)

// State is the pipeline stage.
type State string

const (
	StateIdle      State = "idle"
	StateGuarding  State = "guarding"
	StateCapturing State = "capturing"
	StateRendering State = "rendering"
	StatePrinting  State = "printing"
	StateRecording State = "recording"
)

var (
	// ErrNoPaper aborts a trigger before capture.
	ErrNoPaper = errors.New("no paper")

	// ErrNoTemplate aborts a trigger when no ticket template is installed.
	ErrNoTemplate = errors.New("no ticket template")

	// ErrShutdown is returned by triggers after Shutdown.
	ErrShutdown = errors.New("pipeline shut down")

	// ErrPanic wraps a panic raised by a collaborator during a trigger.
	ErrPanic = errors.New("pipeline panic")
)

// Uploader sends a ticket to the remote.
type Uploader interface {
	UploadTicket(ctx context.Context, p *models.PendingUpload) error
}

// CodeReplenisher tops up the code pool.
type CodeReplenisher interface {
	ClaimNewCodesIfNecessary(ctx context.Context) (int, error)
}

// Config tunes the pipeline.
type Config struct {
	PixelsPerPercent float64
	RefillLevel      float64
	PictureMaxWidth  int
	// Location stamps tickets when the place has no timezone. Nil is UTC.
	Location         *time.Location
	CaptureTimeout   time.Duration
	RenderTimeout    time.Duration
	PrintTimeout     time.Duration
	DoorPulse        time.Duration
	Cooldown         time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		PixelsPerPercent: 6400,
		RefillLevel:      100,
		PictureMaxWidth:  1024,
		CaptureTimeout:   15 * time.Second,
		RenderTimeout:    20 * time.Second,
		PrintTimeout:     30 * time.Second,
		Cooldown:         2 * time.Second,
	}
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Store      *store.Store
	Devices    *devices.Registry
	Renderer   Renderer
	Rasterizer Rasterizer
	Uploader   Uploader
	Codes      CodeReplenisher
	Bus        events.Publisher
}

// Ticket describes a recorded trigger.
type Ticket struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Counter    uint64    `json:"counter"`
	Taken      time.Time `json:"taken"`
	Printed    bool      `json:"printed"`
	PaperLevel float64   `json:"paper_level"`
	OutOfPaper bool      `json:"out_of_paper"`
}

// Pipeline runs triggers. It is safe for concurrent use.
type Pipeline struct {
	cfg  Config
	deps Deps

	guard   Guard
	state   atomic.Value // State
	limiter *rate.Limiter
	closed  atomic.Bool

	// Background uploads outlive the trigger that started them.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	uploads  sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// New returns an idle pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if deps.Bus == nil {
		deps.Bus = events.Discard{}
	}
	if deps.Renderer == nil {
		deps.Renderer = TemplateRenderer{}
	}
	if cfg.PixelsPerPercent <= 0 {
		cfg.PixelsPerPercent = DefaultConfig().PixelsPerPercent
	}
	limit := rate.Inf
	if cfg.Cooldown > 0 {
		limit = rate.Every(cfg.Cooldown)
	}

	p := &Pipeline{
		cfg:     cfg,
		deps:    deps,
		limiter: rate.NewLimiter(limit, 1),
	}
	p.bgCtx, p.bgCancel = context.WithCancel(context.Background())
	p.state.Store(StateIdle)
	return p
}

// State returns the current stage.
func (p *Pipeline) State() State {
	return p.state.Load().(State)
}

func (p *Pipeline) setState(ctx context.Context, s State) {
	p.state.Store(s)
	if err := p.deps.Bus.Publish(ctx, events.TopicPipelineState, events.StateChanged{State: string(s), Time: time.Now()}); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Failed to publish pipeline state")
	}
}

// Trigger runs one trigger and waits for it. A trigger dropped because
// another one holds the devices returns nil, nil. Other failures are logged
// and returned.
func (p *Pipeline) Trigger(ctx context.Context) (*Ticket, error) {
	if p.closed.Load() {
		return nil, ErrShutdown
	}
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)

	var ticket *Ticket
	err := p.guard.TryRun(func() (err error) {
		defer p.setState(ctx, StateIdle)
		defer func() {
			if r := recover(); r != nil {
				ticket = nil
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		ticket, err = p.run(ctx)
		return err
	})

	switch {
	case err == nil:
		metrics.RecordTrigger("printed")
		return ticket, nil
	case errors.Is(err, ErrDevicesBusy):
		metrics.RecordTrigger("busy")
		log.Debug().Msg("Trigger dropped, devices busy")
		return nil, nil
	case errors.Is(err, ErrNoPaper):
		metrics.RecordTrigger("no_paper")
		log.Warn().Msg("Trigger aborted, no paper")
	case errors.Is(err, devices.ErrCapture):
		metrics.RecordTrigger("capture_failed")
		log.Error().Err(err).Msg("Trigger aborted, capture failed")
	case errors.Is(err, store.ErrNotInitialized), errors.Is(err, ErrNoTemplate):
		metrics.RecordTrigger("not_initialized")
		log.Warn().Err(err).Msg("Trigger aborted, photobooth not configured")
	case errors.Is(err, ErrPanic):
		metrics.RecordTrigger("failed")
		log.Error().Err(err).Msg("Trigger panicked, devices released")
	default:
		metrics.RecordTrigger("failed")
		log.Error().Err(err).Msg("Trigger failed")
	}
	return ticket, err
}

// TriggerAsync runs a trigger on its own goroutine and returns at once.
// Edges arriving within the cooldown of the previous accepted one are
// dropped. It is the edge handler of the trigger button.
func (p *Pipeline) TriggerAsync() {
	if p.closed.Load() || !p.limiter.Allow() {
		return
	}
	go func() {
		_, _ = p.Trigger(p.bgCtx)
	}()
}

// Shutdown waits for an in-flight trigger and the background uploads. The
// device guard stays held afterwards, so later triggers are dropped. Only
// the first call waits; later calls return its result.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.shutdown(ctx)
	})
	return p.shutdownErr
}

func (p *Pipeline) shutdown(ctx context.Context) error {
	p.closed.Store(true)
	if _, err := p.guard.Acquire(ctx); err != nil {
		p.bgCancel()
		return fmt.Errorf("wait for trigger: %w", err)
	}

	done := make(chan struct{})
	go func() {
		p.uploads.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.bgCancel()
		return nil
	case <-ctx.Done():
		p.bgCancel()
		return fmt.Errorf("wait for uploads: %w", ctx.Err())
	}
}

// RefillPaper resets the paper gauge after the roll was replaced.
func (p *Pipeline) RefillPaper(ctx context.Context) (float64, error) {
	level, err := p.deps.Store.SetPaperLevel(ctx, p.cfg.RefillLevel)
	if err != nil {
		return 0, err
	}
	logging.Ctx(ctx).Info().Float64("paper_level", level).Msg("Paper refilled")
	p.publish(ctx, events.TopicPaperLevel, events.PaperLevel{Level: level, Time: time.Now()})
	return level, nil
}

func (p *Pipeline) publish(ctx context.Context, topic string, payload interface{}) {
	if err := p.deps.Bus.Publish(ctx, topic, payload); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}
