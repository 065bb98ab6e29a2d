// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

//go:build linux

package devices

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// RTC is a hardware clock behind /dev/rtcN. It keeps UTC.
type RTC struct {
	path string
}

func NewRTC(path string) *RTC {
	return &RTC{path: path}
}

func (r *RTC) ReadTime() (time.Time, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("open rtc: %w", err)
	}
	defer f.Close()

	rt, err := unix.IoctlGetRTCTime(int(f.Fd()))
	if err != nil {
		return time.Time{}, fmt.Errorf("read rtc: %w", err)
	}
	return fromRTC(rt), nil
}

func (r *RTC) WriteTime(t time.Time) error {
	f, err := os.OpenFile(r.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open rtc: %w", err)
	}
	defer f.Close()

	rt := toRTC(t)
	if err := unix.IoctlSetRTCTime(int(f.Fd()), &rt); err != nil {
		return fmt.Errorf("write rtc: %w", err)
	}
	return nil
}

func fromRTC(rt *unix.RTCTime) time.Time {
	return time.Date(int(rt.Year)+1900, time.Month(rt.Mon+1), int(rt.Mday),
		int(rt.Hour), int(rt.Min), int(rt.Sec), 0, time.UTC)
}

func toRTC(t time.Time) unix.RTCTime {
	u := t.UTC()
	return unix.RTCTime{
		Sec:  int32(u.Second()),
		Min:  int32(u.Minute()),
		Hour: int32(u.Hour()),
		Mday: int32(u.Day()),
		Mon:  int32(u.Month()) - 1,
		Year: int32(u.Year() - 1900),
		Wday: int32(u.Weekday()),
		Yday: int32(u.YearDay() - 1),
	}
}
