// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package devices

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// gpioPin is a pin of the sysfs GPIO interface.
type gpioPin struct {
	dir string
}

func exportPin(root string, pin int, direction string) (*gpioPin, error) {
	dir := filepath.Join(root, "gpio"+strconv.Itoa(pin))
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(pin)), 0o644); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", pin, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte(direction), 0o644); err != nil {
		return nil, fmt.Errorf("set gpio %d direction: %w", pin, err)
	}
	return &gpioPin{dir: dir}, nil
}

func (p *gpioPin) write(high bool) error {
	v := "0"
	if high {
		v = "1"
	}
	return os.WriteFile(filepath.Join(p.dir, "value"), []byte(v), 0o644)
}

func (p *gpioPin) read() (bool, error) {
	data, err := os.ReadFile(filepath.Join(p.dir, "value"))
	if err != nil {
		return false, err
	}
	switch strings.TrimSpace(string(data)) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("gpio value %q", data)
	}
}

// GPIODoor drives the door relay through an output pin.
type GPIODoor struct {
	pin *gpioPin
}

// NewGPIODoor exports pin as an output and closes the door.
func NewGPIODoor(root string, pin int) (*GPIODoor, error) {
	p, err := exportPin(root, pin, "out")
	if err != nil {
		return nil, err
	}
	d := &GPIODoor{pin: p}
	return d, d.Close(context.Background())
}

func (d *GPIODoor) Open(context.Context) error  { return d.pin.write(true) }
func (d *GPIODoor) Close(context.Context) error { return d.pin.write(false) }

// GPIOButton watches an input pin by polling its value.
type GPIOButton struct {
	pin       *gpioPin
	poll      time.Duration
	activeLow bool
	debounce  time.Duration
}

// NewGPIOButton exports pin as an input.
func NewGPIOButton(root string, pin int, poll time.Duration, activeLow bool) (*GPIOButton, error) {
	p, err := exportPin(root, pin, "in")
	if err != nil {
		return nil, err
	}
	if poll <= 0 {
		poll = 20 * time.Millisecond
	}
	return &GPIOButton{pin: p, poll: poll, activeLow: activeLow, debounce: 50 * time.Millisecond}, nil
}

// Watch calls fn on every transition to the active level. Presses within
// the debounce window of the previous one are ignored. fn runs on the
// polling goroutine and must not block.
func (b *GPIOButton) Watch(ctx context.Context, fn func()) error {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	pressed := false
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		high, err := b.pin.read()
		if err != nil {
			// Partial writes and transient read errors.
			continue
		}
		active := high != b.activeLow
		if active && !pressed {
			if now := time.Now(); now.Sub(last) >= b.debounce {
				last = now
				fn()
			}
		}
		pressed = active
	}
}
