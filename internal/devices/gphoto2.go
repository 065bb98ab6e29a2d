// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package devices

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
)

// GPhoto2Camera captures through the gphoto2 command line tool.
type GPhoto2Camera struct {
	binary string
	args   []string
	model  CameraModel
}

// NewGPhoto2Camera returns a camera that runs binary. Pictures are captured
// to the camera RAM and streamed on stdout.
func NewGPhoto2Camera(binary string, model CameraModel) *GPhoto2Camera {
	if binary == "" {
		binary = "gphoto2"
	}
	return &GPhoto2Camera{
		binary: binary,
		args:   []string{"--set-config", "capturetarget=0", "--capture-image-and-download", "--stdout"},
		model:  model,
	}
}

// Capture runs one capture. Any failure wraps ErrCapture.
func (c *GPhoto2Camera) Capture(ctx context.Context) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, c.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w: %s", ErrCapture, c.model, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: %s: empty picture", ErrCapture, c.model)
	}

	logging.Ctx(ctx).Debug().
		Str("camera", c.model.String()).
		Int("bytes", stdout.Len()).
		Msg("Picture captured")
	return stdout.Bytes(), nil
}
