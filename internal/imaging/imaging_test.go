// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPreparePictureScalesDown(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 300))
	draw.Draw(src, src.Bounds(), &image.Uniform{C: color.RGBA{200, 10, 10, 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}

	out, err := PreparePicture(buf.Bytes(), 200)
	if err != nil {
		t.Fatalf("PreparePicture() error = %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if format != "jpeg" || cfg.Width != 200 || cfg.Height != 150 {
		t.Errorf("got %s %dx%d, want jpeg 200x150", format, cfg.Width, cfg.Height)
	}
}

func TestPreparePictureRejectsGarbage(t *testing.T) {
	if _, err := PreparePicture([]byte("not an image"), 0); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestOrientationDefaultsToUpright(t *testing.T) {
	if got := Orientation([]byte("no exif here")); got != 1 {
		t.Errorf("Orientation() = %d, want 1", got)
	}
}

func TestApplyOrientationSwapsAxes(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 10))
	for _, o := range []int{5, 6, 7, 8} {
		if b := applyOrientation(img, o).Bounds(); b.Dx() != 10 || b.Dy() != 40 {
			t.Errorf("orientation %d: bounds %v", o, b)
		}
	}
	if b := applyOrientation(img, 3).Bounds(); b.Dx() != 40 {
		t.Errorf("orientation 3 swapped axes: %v", b)
	}
}

func TestToRaster(t *testing.T) {
	// Left half black, right half white.
	src := image.NewGray(image.Rect(0, 0, 16, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 16; x++ {
			if x < 8 {
				src.SetGray(x, y, color.Gray{Y: 0})
			} else {
				src.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	r, err := ToRaster(encodePNG(t, src), 16)
	if err != nil {
		t.Fatalf("ToRaster() error = %v", err)
	}
	if r.Width != 16 || r.Height != 4 || r.BytesPerRow() != 2 {
		t.Fatalf("raster %dx%d", r.Width, r.Height)
	}
	for y := 0; y < 4; y++ {
		if r.Data[y*2] != 0xFF || r.Data[y*2+1] != 0x00 {
			t.Errorf("row %d = %08b %08b", y, r.Data[y*2], r.Data[y*2+1])
		}
	}
}

func TestToRasterScalesToWidth(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 100, 50))
	r, err := ToRaster(encodePNG(t, src), 48)
	if err != nil {
		t.Fatal(err)
	}
	if r.Width != 48 || r.Height != 24 {
		t.Errorf("raster %dx%d, want 48x24", r.Width, r.Height)
	}
	if _, err := ToRaster(encodePNG(t, src), 50); err == nil {
		t.Error("expected error for width not a multiple of 8")
	}
}
