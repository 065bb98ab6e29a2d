// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package remote_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/models"
	"github.com/Postcard/figure-raspbian-sub000/internal/remote"
	"github.com/Postcard/figure-raspbian-sub000/internal/remote/remotetest"
)

func sampleInstallation() *models.Installation {
	return &models.Installation{
		ID:           "inst-1",
		PhotoboothID: "pb-1",
		Place: &models.Place{
			ID: "place-1", Name: "Cafe", Timezone: "Europe/Paris",
			Modified: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestGetInstallation(t *testing.T) {
	srv := remotetest.NewServer(t)
	client := srv.Client()
	ctx := context.Background()

	t.Run("not configured is rejected", func(t *testing.T) {
		_, err := client.GetInstallation(ctx)
		var rej *remote.RejectedError
		if !errors.As(err, &rej) || rej.StatusCode != http.StatusNotFound {
			t.Fatalf("error = %v, want 404 RejectedError", err)
		}
		if !errors.Is(err, remote.ErrRemoteRejected) {
			t.Error("RejectedError does not match ErrRemoteRejected")
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		srv.SetInstallation(sampleInstallation())
		inst, err := client.GetInstallation(ctx)
		if err != nil {
			t.Fatalf("GetInstallation() error = %v", err)
		}
		if inst.Place == nil || inst.Place.Timezone != "Europe/Paris" {
			t.Errorf("place = %+v", inst.Place)
		}
		if inst.Event != nil || inst.TicketTemplate != nil {
			t.Errorf("unexpected nested entities: %+v", inst)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		srv.SetMalformed(true)
		defer srv.SetMalformed(false)
		if _, err := client.GetInstallation(ctx); !errors.Is(err, remote.ErrMalformedResponse) {
			t.Errorf("error = %v, want ErrMalformedResponse", err)
		}
	})

	t.Run("server error is unavailable", func(t *testing.T) {
		srv.SetStatus(remotetest.Installation, http.StatusBadGateway)
		defer srv.SetStatus(remotetest.Installation, 0)
		_, err := client.GetInstallation(ctx)
		if !errors.Is(err, remote.ErrRemoteUnavailable) || remote.IsRejected(err) {
			t.Errorf("error = %v, want ErrRemoteUnavailable", err)
		}
	})
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		rejected  bool
		permanent bool
	}{
		{http.StatusBadRequest, true, true},
		{http.StatusUnauthorized, true, false},
		{http.StatusForbidden, true, false},
		{http.StatusNotFound, true, false},
		{http.StatusConflict, true, true},
		{http.StatusUnprocessableEntity, true, true},
		{http.StatusRequestTimeout, false, false},
		{http.StatusTooManyRequests, false, false},
		{http.StatusInternalServerError, false, false},
		{http.StatusServiceUnavailable, false, false},
	}
	srv := remotetest.NewServer(t)
	client := srv.Client()

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv.SetStatus(remotetest.Device, tt.status)
			err := client.UpdateDevice(context.Background(), models.DeviceReport{})
			if got := remote.IsRejected(err); got != tt.rejected {
				t.Errorf("IsRejected(%v) = %v, want %v", err, got, tt.rejected)
			}
			if got := remote.IsPermanentRejection(err); got != tt.permanent {
				t.Errorf("IsPermanentRejection(%v) = %v, want %v", err, got, tt.permanent)
			}
			if !tt.rejected && !errors.Is(err, remote.ErrRemoteUnavailable) {
				t.Errorf("error = %v, want ErrRemoteUnavailable", err)
			}
		})
	}
}

func TestClaimCodes(t *testing.T) {
	srv := remotetest.NewServer(t)
	codes, err := srv.Client().ClaimCodes(context.Background(), 25)
	if err != nil {
		t.Fatalf("ClaimCodes() error = %v", err)
	}
	if len(codes) != 25 {
		t.Errorf("got %d codes, want 25", len(codes))
	}
	if srv.Calls(remotetest.Claim) != 1 {
		t.Errorf("claim calls = %d", srv.Calls(remotetest.Claim))
	}
}

func TestUpdateDeviceSendsReport(t *testing.T) {
	srv := remotetest.NewServer(t)
	level := 42.5
	err := srv.Client().UpdateDevice(context.Background(), models.DeviceReport{PaperLevel: &level})
	if err != nil {
		t.Fatal(err)
	}
	reports := srv.Reports()
	if len(reports) != 1 || reports[0].PaperLevel == nil || *reports[0].PaperLevel != 42.5 {
		t.Errorf("reports = %+v", reports)
	}
	if reports[0].MACAddresses != nil {
		t.Errorf("unset field sent: %v", reports[0].MACAddresses)
	}
}

func TestUploadTicket(t *testing.T) {
	srv := remotetest.NewServer(t)
	dir := t.TempDir()
	pic := filepath.Join(dir, "p.jpg")
	ticket := filepath.Join(dir, "t.png")
	if err := os.WriteFile(pic, []byte("picture-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ticket, []byte("ticket-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	p := &models.PendingUpload{
		PicturePath: pic, TicketPath: ticket, PhotoboothID: "pb-1", Code: "ABC123",
		PlaceID: "place-1", Taken: time.Date(2020, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := srv.Client().UploadTicket(context.Background(), p); err != nil {
		t.Fatalf("UploadTicket() error = %v", err)
	}

	got := srv.Tickets()
	if len(got) != 1 {
		t.Fatalf("received %d tickets", len(got))
	}
	if got[0].Code != "ABC123" || got[0].Place != "place-1" || got[0].Event != "" {
		t.Errorf("metadata = %+v", got[0])
	}
	if got[0].Taken != "2020-02-01T10:00:00Z" {
		t.Errorf("taken = %q", got[0].Taken)
	}
	if !bytes.Equal(got[0].Picture, []byte("picture-bytes")) || !bytes.Equal(got[0].Ticket, []byte("ticket-bytes")) {
		t.Error("file contents not transmitted")
	}
}

func TestUploadTicketMissingFile(t *testing.T) {
	srv := remotetest.NewServer(t)
	p := &models.PendingUpload{PicturePath: "/nonexistent/p.jpg", TicketPath: "/nonexistent/t.png"}
	err := srv.Client().UploadTicket(context.Background(), p)
	if !errors.Is(err, remote.ErrLocalFile) {
		t.Fatalf("error = %v, want ErrLocalFile", err)
	}
	if srv.Calls(remotetest.Tickets) != 0 {
		t.Error("request sent despite missing file")
	}
}

func TestDownload(t *testing.T) {
	srv := remotetest.NewServer(t)
	url := srv.AddMedia("logo.png", []byte("png-data"))

	var got []byte
	err := srv.Client().Download(context.Background(), url, func(r io.Reader) error {
		var err error
		got, err = io.ReadAll(r)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "png-data" {
		t.Errorf("body = %q", got)
	}

	err = srv.Client().Download(context.Background(), srv.URL+"/media/missing.png", func(io.Reader) error { return nil })
	if !remote.IsRejected(err) {
		t.Errorf("missing media error = %v, want rejected", err)
	}
}

func TestBreakerOpensOnRepeatedFailures(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := remote.NewClient(remote.Config{
		BaseURL: ts.URL, PhotoboothID: "pb-1", Timeout: time.Second,
		BreakerMinRequests: 3, BreakerFailureRatio: 0.5, BreakerTimeout: time.Hour,
	})
	for i := 0; i < 5; i++ {
		_, _ = client.GetInstallation(context.Background())
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("server saw %d calls, want 3 before the breaker opened", n)
	}
	if client.BreakerState() != "open" {
		t.Errorf("BreakerState() = %s, want open", client.BreakerState())
	}
	if _, err := client.GetInstallation(context.Background()); !errors.Is(err, remote.ErrRemoteUnavailable) {
		t.Errorf("open breaker error = %v, want ErrRemoteUnavailable", err)
	}
}
