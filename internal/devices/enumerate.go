// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// CameraModel tags the detected camera.
type CameraModel int

const (
	CameraNone CameraModel = iota
	CameraCanonDSLR
	CameraNikonDSLR
)

func (m CameraModel) String() string {
	switch m {
	case CameraCanonDSLR:
		return "canon_dslr"
	case CameraNikonDSLR:
		return "nikon_dslr"
	default:
		return "none"
	}
}

// PrinterModel tags the detected printer.
type PrinterModel int

const (
	PrinterNone PrinterModel = iota
	PrinterEpsonTMT20
	PrinterCustomVKP80III
)

func (m PrinterModel) String() string {
	switch m {
	case PrinterEpsonTMT20:
		return "epson_tm_t20"
	case PrinterCustomVKP80III:
		return "custom_vkp80iii"
	default:
		return "none"
	}
}

// USB vendor ids.
const (
	vendorCanon  = 0x04a9
	vendorNikon  = 0x04b0
	vendorEpson  = 0x04b8
	vendorCustom = 0x0dd4
)

var printerProducts = map[[2]uint16]PrinterModel{
	{vendorEpson, 0x0e03}:  PrinterEpsonTMT20,
	{vendorEpson, 0x0e15}:  PrinterEpsonTMT20,
	{vendorEpson, 0x0e28}:  PrinterEpsonTMT20,
	{vendorCustom, 0x0205}: PrinterCustomVKP80III,
	{vendorCustom, 0x01a8}: PrinterCustomVKP80III,
}

// USBDevice is one entry of the USB device tree.
type USBDevice struct {
	Path    string `json:"path"`
	Vendor  uint16 `json:"vendor"`
	Product uint16 `json:"product"`
	Name    string `json:"name,omitempty"`
}

func (d USBDevice) String() string {
	return fmt.Sprintf("%04x:%04x %s", d.Vendor, d.Product, d.Name)
}

// Capabilities describes the hardware found at boot.
type Capabilities struct {
	Camera  CameraModel  `json:"camera"`
	Printer PrinterModel `json:"printer"`
	Devices []USBDevice  `json:"devices"`
}

// Enumerate lists the USB devices under usbRoot (normally
// /sys/bus/usb/devices) and classifies the camera and printer. Entries
// without vendor and product ids, such as interfaces, are skipped.
func Enumerate(usbRoot string) (Capabilities, error) {
	entries, err := os.ReadDir(usbRoot)
	if err != nil {
		return Capabilities{}, fmt.Errorf("read usb devices: %w", err)
	}

	var caps Capabilities
	for _, e := range entries {
		dir := filepath.Join(usbRoot, e.Name())
		vendor, err := readHexID(filepath.Join(dir, "idVendor"))
		if err != nil {
			continue
		}
		product, err := readHexID(filepath.Join(dir, "idProduct"))
		if err != nil {
			continue
		}
		name, _ := os.ReadFile(filepath.Join(dir, "product"))
		caps.Devices = append(caps.Devices, USBDevice{
			Path:    e.Name(),
			Vendor:  vendor,
			Product: product,
			Name:    strings.TrimSpace(string(name)),
		})
	}
	sort.Slice(caps.Devices, func(i, j int) bool { return caps.Devices[i].Path < caps.Devices[j].Path })

	for _, d := range caps.Devices {
		if caps.Camera == CameraNone {
			switch d.Vendor {
			case vendorCanon:
				caps.Camera = CameraCanonDSLR
			case vendorNikon:
				caps.Camera = CameraNikonDSLR
			}
		}
		if caps.Printer == PrinterNone {
			caps.Printer = printerProducts[[2]uint16{d.Vendor, d.Product}]
		}
	}
	return caps, nil
}

func readHexID(path string) (uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return uint16(v), nil
}
