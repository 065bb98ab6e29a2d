// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package devices

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/imaging"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
)

// ESC/POS commands.
var (
	cmdInit         = []byte{0x1b, 0x40}       // ESC @
	cmdPaperStatus  = []byte{0x10, 0x04, 0x04} // DLE EOT 4
	cmdCutEpson     = []byte{0x1d, 0x56, 0x42, 0x00}
	cmdCutCustom    = []byte{0x1b, 0x69}
	statusPaperEnd  = byte(0x60)
	statusPaperNear = byte(0x0c)
)

// maxBandHeight bounds the rows sent in one GS v 0 command.
const maxBandHeight = 256

// EscPosProfile holds per model printer parameters.
type EscPosProfile struct {
	Model     PrinterModel
	Width     int // printable dots
	FeedLines byte
	Cut       []byte
}

// ProfileFor returns the profile of a detected printer model.
func ProfileFor(model PrinterModel) EscPosProfile {
	switch model {
	case PrinterCustomVKP80III:
		return EscPosProfile{Model: model, Width: 576, FeedLines: 6, Cut: cmdCutCustom}
	default:
		return EscPosProfile{Model: model, Width: 576, FeedLines: 4, Cut: cmdCutEpson}
	}
}

// PortOpener opens the printer device.
type PortOpener func() (io.ReadWriteCloser, error)

// DevicePort opens a USB line printer device such as /dev/usb/lp0.
func DevicePort(path string) PortOpener {
	return func() (io.ReadWriteCloser, error) {
		return os.OpenFile(path, os.O_RDWR, 0)
	}
}

// EscPosPrinter prints raster tickets on an ESC/POS thermal printer.
type EscPosPrinter struct {
	open          PortOpener
	profile       EscPosProfile
	statusTimeout time.Duration
}

// NewEscPosPrinter returns a printer writing to the port open returns.
func NewEscPosPrinter(open PortOpener, profile EscPosProfile) *EscPosPrinter {
	return &EscPosPrinter{open: open, profile: profile, statusTimeout: 2 * time.Second}
}

// PaperPresent queries the roll paper sensor.
func (p *EscPosPrinter) PaperPresent(ctx context.Context) (bool, error) {
	port, err := p.open()
	if err != nil {
		return false, fmt.Errorf("open printer: %w", err)
	}
	defer port.Close()

	status, err := p.status(ctx, port)
	if err != nil {
		return false, err
	}
	return status&statusPaperEnd == 0, nil
}

// PrintImage rasterizes img to the printer width, prints it and cuts. The
// returned length is the raster height in pixels. ErrOutOfPaper is returned
// with a zero length when paper is missing before printing, and with the
// printed length when the roll ran out during the print.
func (p *EscPosPrinter) PrintImage(ctx context.Context, img []byte) (int, error) {
	raster, err := imaging.ToRaster(img, p.profile.Width)
	if err != nil {
		return 0, err
	}

	port, err := p.open()
	if err != nil {
		return 0, fmt.Errorf("open printer: %w", err)
	}
	defer port.Close()

	status, err := p.status(ctx, port)
	if err != nil {
		return 0, err
	}
	if status&statusPaperEnd != 0 {
		return 0, ErrOutOfPaper
	}

	if _, err := port.Write(cmdInit); err != nil {
		return 0, fmt.Errorf("write printer: %w", err)
	}
	if err := p.writeRaster(ctx, port, raster); err != nil {
		return 0, err
	}
	if _, err := port.Write([]byte{0x1b, 0x64, p.profile.FeedLines}); err != nil {
		return 0, fmt.Errorf("write printer: %w", err)
	}
	if _, err := port.Write(p.profile.Cut); err != nil {
		return 0, fmt.Errorf("write printer: %w", err)
	}

	status, err = p.status(ctx, port)
	if err != nil {
		return raster.Height, err
	}
	if status&statusPaperEnd != 0 {
		return raster.Height, ErrOutOfPaper
	}
	if status&statusPaperNear != 0 {
		logging.Ctx(ctx).Warn().Str("printer", p.profile.Model.String()).Msg("Paper near end")
	}
	return raster.Height, nil
}

func (p *EscPosPrinter) writeRaster(ctx context.Context, w io.Writer, r *imaging.Raster) error {
	row := r.BytesPerRow()
	for y := 0; y < r.Height; y += maxBandHeight {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := min(maxBandHeight, r.Height-y)
		header := []byte{
			0x1d, 0x76, 0x30, 0x00, // GS v 0, normal density
			byte(row), byte(row >> 8),
			byte(h), byte(h >> 8),
		}
		if _, err := w.Write(header); err != nil {
			return fmt.Errorf("write printer: %w", err)
		}
		if _, err := w.Write(r.Data[y*row : (y+h)*row]); err != nil {
			return fmt.Errorf("write printer: %w", err)
		}
	}
	return nil
}

// status sends DLE EOT 4 and reads the one byte answer. The port is closed
// when the answer does not arrive in time, which unblocks the reader.
func (p *EscPosPrinter) status(ctx context.Context, port io.ReadWriteCloser) (byte, error) {
	if _, err := port.Write(cmdPaperStatus); err != nil {
		return 0, fmt.Errorf("write printer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.statusTimeout)
	defer cancel()

	type result struct {
		b   byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := io.ReadFull(port, buf)
		ch <- result{buf[0], err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return 0, fmt.Errorf("read printer status: %w", r.err)
		}
		return r.b, nil
	case <-ctx.Done():
		_ = port.Close()
		return 0, fmt.Errorf("read printer status: %w", ctx.Err())
	}
}
