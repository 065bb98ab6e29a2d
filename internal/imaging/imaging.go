// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package imaging prepares captured pictures for rendering and converts
// rendered tickets into printer rasters.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	// Registered for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation returns the EXIF orientation of a JPEG, 1 when absent.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation rotates and flips img so that it displays upright.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// PreparePicture decodes a captured picture, applies its EXIF orientation,
// scales it down to maxWidth (zero keeps the size) and encodes it as JPEG.
func PreparePicture(data []byte, maxWidth int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode picture: %w", err)
	}
	img = applyOrientation(img, Orientation(data))
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode picture: %w", err)
	}
	return buf.Bytes(), nil
}

// Raster is a 1-bit image, rows packed MSB first, a set bit printing black.
type Raster struct {
	Width  int // dots, a multiple of 8
	Height int
	Data   []byte
}

// BytesPerRow returns the packed row length.
func (r *Raster) BytesPerRow() int {
	return r.Width / 8
}

// ToRaster decodes a rendered ticket, scales it to width dots and
// thresholds it with Floyd-Steinberg dithering.
func ToRaster(data []byte, width int) (*Raster, error) {
	if width <= 0 || width%8 != 0 {
		return nil, fmt.Errorf("raster width %d must be a positive multiple of 8", width)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	// Transparent areas print white.
	bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White)
	img = imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
	if img.Bounds().Dx() != width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	gray := imaging.Grayscale(img)
	return dither(gray), nil
}

func dither(img *image.NRGBA) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lum[y*w+x] = float64(img.NRGBAAt(b.Min.X+x, b.Min.Y+y).R)
		}
	}

	r := &Raster{Width: w, Height: h, Data: make([]byte, w/8*h)}
	spread := func(x, y int, e float64) {
		if x >= 0 && x < w && y < h {
			lum[y*w+x] += e
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			old := lum[y*w+x]
			v := 255.0
			if old < 128 {
				v = 0
				r.Data[y*(w/8)+x/8] |= 0x80 >> uint(x%8)
			}
			e := old - v
			spread(x+1, y, e*7/16)
			spread(x-1, y+1, e*3/16)
			spread(x, y+1, e*5/16)
			spread(x+1, y+1, e*1/16)
		}
	}
	return r
}
