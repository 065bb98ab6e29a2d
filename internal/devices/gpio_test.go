// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package devices

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func gpioRoot(t *testing.T, pins ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range pins {
		if err := os.MkdirAll(filepath.Join(root, "gpio"+p), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(data))
}

func TestGPIODoor(t *testing.T) {
	root := gpioRoot(t, "27")
	door, err := NewGPIODoor(root, 27)
	if err != nil {
		t.Fatalf("NewGPIODoor() error = %v", err)
	}

	value := filepath.Join(root, "gpio27", "value")
	if got := readFile(t, filepath.Join(root, "gpio27", "direction")); got != "out" {
		t.Errorf("direction = %q", got)
	}
	if got := readFile(t, value); got != "0" {
		t.Errorf("initial value = %q, want closed", got)
	}
	if err := door.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, value); got != "1" {
		t.Errorf("value after Open = %q", got)
	}
}

func TestGPIOExportsMissingPin(t *testing.T) {
	root := t.TempDir()
	// Without a kernel nothing creates gpio5, so setting the direction fails
	// after the export request was written.
	if _, err := NewGPIODoor(root, 5); err == nil {
		t.Fatal("expected direction error")
	}
	if got := readFile(t, filepath.Join(root, "export")); got != "5" {
		t.Errorf("export = %q, want 5", got)
	}
}

func TestGPIOButtonWatch(t *testing.T) {
	root := gpioRoot(t, "17")
	value := filepath.Join(root, "gpio17", "value")
	if err := os.WriteFile(value, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}

	button, err := NewGPIOButton(root, 17, time.Millisecond, true)
	if err != nil {
		t.Fatalf("NewGPIOButton() error = %v", err)
	}
	button.debounce = 0

	var presses atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- button.Watch(ctx, func() { presses.Add(1) }) }()

	set := func(v string) {
		if err := os.WriteFile(value, []byte(v), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	waitFor := func(n int32) {
		deadline := time.Now().Add(2 * time.Second)
		for presses.Load() < n {
			if time.Now().After(deadline) {
				t.Fatalf("presses = %d, want %d", presses.Load(), n)
			}
			time.Sleep(time.Millisecond)
		}
	}

	set("0")
	waitFor(1)
	// Holding the button does not repeat.
	time.Sleep(20 * time.Millisecond)
	if got := presses.Load(); got != 1 {
		t.Fatalf("presses while held = %d", got)
	}
	set("1")
	time.Sleep(20 * time.Millisecond)
	set("0")
	waitFor(2)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
