// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package timesync

import (
	"errors"
	"testing"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/devices/devicetest"
)

type fakeSystem struct {
	now time.Time
	set []time.Time
	err error
}

func (s *fakeSystem) Now() time.Time { return s.now }

func (s *fakeSystem) Set(t time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.set = append(s.set, t)
	return nil
}

var feb = time.Date(2020, 2, 1, 12, 0, 0, 0, time.UTC)

func TestBoot(t *testing.T) {
	tests := []struct {
		name    string
		online  bool
		rtc     time.Time
		sys     time.Time
		want    Direction
		written int
		set     int
	}{
		{name: "online saves to rtc", online: true, rtc: feb, sys: feb.Add(time.Hour), want: SavedToRTC, written: 1},
		{name: "online with unset system clock", online: true, rtc: feb, sys: time.Unix(0, 0), want: Skipped},
		{name: "offline restores from rtc", online: false, rtc: feb, sys: time.Unix(0, 0), want: RestoredToSys, set: 1},
		{name: "offline with unset rtc", online: false, rtc: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), want: Skipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rtc := devicetest.NewClock(tt.rtc)
			sys := &fakeSystem{now: tt.sys}

			got, err := Boot(tt.online, rtc, sys)
			if err != nil {
				t.Fatalf("Boot() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Boot() = %s, want %s", got, tt.want)
			}
			if n := len(rtc.Written()); n != tt.written {
				t.Errorf("rtc writes = %d, want %d", n, tt.written)
			}
			if n := len(sys.set); n != tt.set {
				t.Errorf("system sets = %d, want %d", n, tt.set)
			}
			if tt.set == 1 && !sys.set[0].Equal(tt.rtc) {
				t.Errorf("system set to %v, want %v", sys.set[0], tt.rtc)
			}
		})
	}
}

func TestBootRTCFailure(t *testing.T) {
	rtc := devicetest.NewClock(feb)
	failure := errors.New("ioctl failed")
	rtc.SetError(failure)

	if _, err := Boot(false, rtc, &fakeSystem{}); !errors.Is(err, failure) {
		t.Errorf("Boot() offline error = %v", err)
	}
	if _, err := Boot(true, rtc, &fakeSystem{now: feb}); !errors.Is(err, failure) {
		t.Errorf("Boot() online error = %v", err)
	}
}
