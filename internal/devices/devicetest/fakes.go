// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package devicetest provides in-memory devices for tests.
package devicetest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/devices"
)

// JPEG returns a solid w x h JPEG picture.
func JPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{90, 120, 200, 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

// Camera returns Picture or Err. When Block is set each capture waits for
// a value on it.
type Camera struct {
	Picture []byte
	Err     error
	Block   chan struct{}

	calls atomic.Int64
}

func NewCamera() *Camera {
	return &Camera{Picture: JPEG(64, 48)}
}

func (c *Camera) Capture(ctx context.Context) ([]byte, error) {
	c.calls.Add(1)
	if c.Block != nil {
		select {
		case <-c.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Picture, nil
}

// Calls returns the number of Capture calls.
func (c *Camera) Calls() int64 { return c.calls.Load() }

// Printer records printed images.
type Printer struct {
	mu      sync.Mutex
	paper   bool
	pixels  int
	err     error
	printed [][]byte

	paperChecks atomic.Int64
}

// NewPrinter returns a printer with paper that reports pixels per ticket.
func NewPrinter(pixels int) *Printer {
	return &Printer{paper: true, pixels: pixels}
}

func (p *Printer) SetPaper(present bool) {
	p.mu.Lock()
	p.paper = present
	p.mu.Unlock()
}

// SetError makes PrintImage fail with err after reporting the pixels.
func (p *Printer) SetError(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *Printer) PaperPresent(context.Context) (bool, error) {
	p.paperChecks.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paper, nil
}

func (p *Printer) PrintImage(_ context.Context, img []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = append(p.printed, img)
	return p.pixels, p.err
}

// Printed returns the number of printed tickets.
func (p *Printer) Printed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.printed)
}

func (p *Printer) PaperChecks() int64 { return p.paperChecks.Load() }

// Door counts relay operations.
type Door struct {
	opens, closes atomic.Int64
}

func (d *Door) Open(context.Context) error {
	d.opens.Add(1)
	return nil
}

func (d *Door) Close(context.Context) error {
	d.closes.Add(1)
	return nil
}

func (d *Door) Opens() int64  { return d.opens.Load() }
func (d *Door) Closes() int64 { return d.closes.Load() }

// Button delivers a press for every Press call.
type Button struct {
	presses chan struct{}
}

func NewButton() *Button {
	return &Button{presses: make(chan struct{}, 16)}
}

func (b *Button) Press() { b.presses <- struct{}{} }

func (b *Button) Watch(ctx context.Context, fn func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.presses:
			fn()
		}
	}
}

// Clock is a settable hardware clock.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	err     error
	written []time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) SetError(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Clock) ReadTime() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now, c.err
}

func (c *Clock) WriteTime(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.now = t
	c.written = append(c.written, t)
	return nil
}

// Written returns the times passed to WriteTime.
func (c *Clock) Written() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.written...)
}

// Registry is a fake device set.
type Registry struct {
	Camera  *Camera
	Printer *Printer
	Door    *Door
	Button  *Button
	Clock   *Clock
}

// NewRegistry returns fakes with paper loaded and a working camera.
func NewRegistry() *Registry {
	return &Registry{
		Camera:  NewCamera(),
		Printer: NewPrinter(640),
		Door:    &Door{},
		Button:  NewButton(),
		Clock:   NewClock(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
}

// Devices returns the fakes as a devices.Registry.
func (r *Registry) Devices() *devices.Registry {
	return &devices.Registry{
		Capabilities: devices.Capabilities{
			Camera:  devices.CameraCanonDSLR,
			Printer: devices.PrinterEpsonTMT20,
		},
		Camera:  r.Camera,
		Printer: r.Printer,
		Door:    r.Door,
		Button:  r.Button,
		Clock:   r.Clock,
	}
}
