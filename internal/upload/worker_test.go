// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package upload

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/events"
	"github.com/Postcard/figure-raspbian-sub000/internal/models"
	"github.com/Postcard/figure-raspbian-sub000/internal/remote"
	"github.com/Postcard/figure-raspbian-sub000/internal/remote/remotetest"
	"github.com/Postcard/figure-raspbian-sub000/internal/store"
)

func setup(t *testing.T) (*store.Store, *remotetest.Server) {
	t.Helper()
	st, err := store.OpenForTesting(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, remotetest.NewServer(t)
}

// enqueue queues a ticket with the given id and code.
func enqueue(t *testing.T, st *store.Store, id, code string) *models.PendingUpload {
	t.Helper()
	picture, ticket := st.PortraitPaths(id)
	if err := store.WriteFile(picture, []byte("picture-"+code)); err != nil {
		t.Fatal(err)
	}
	if err := store.WriteFile(ticket, []byte("ticket-"+code)); err != nil {
		t.Fatal(err)
	}
	p := &models.PendingUpload{
		ID:           id,
		PicturePath:  picture,
		TicketPath:   ticket,
		Taken:        time.Date(2020, 2, 1, 12, 0, 0, 0, time.UTC),
		PhotoboothID: "pb-1",
		Code:         code,
	}
	if err := st.EnqueuePendingUpload(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func pending(t *testing.T, st *store.Store) int {
	t.Helper()
	n, err := st.CountPendingUploads(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestDrainUploadsOldestFirst(t *testing.T) {
	st, srv := setup(t)
	var queued []*models.PendingUpload
	for _, c := range [][2]string{{"0003", "CCC"}, {"0001", "AAA"}, {"0002", "BBB"}} {
		queued = append(queued, enqueue(t, st, c[0], c[1]))
	}

	res, err := NewWorker(st, srv.Client(), nil, 0).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if res.Uploaded != 3 {
		t.Errorf("uploaded = %d, want 3", res.Uploaded)
	}

	tickets := srv.Tickets()
	if len(tickets) != 3 {
		t.Fatalf("server received %d tickets", len(tickets))
	}
	for i, want := range []string{"AAA", "BBB", "CCC"} {
		if tickets[i].Code != want {
			t.Errorf("ticket %d code = %s, want %s", i, tickets[i].Code, want)
		}
	}
	if string(tickets[0].Picture) != "picture-AAA" {
		t.Errorf("picture = %q", tickets[0].Picture)
	}
	if pending(t, st) != 0 {
		t.Error("queue not empty")
	}
	for _, p := range queued {
		if _, err := os.Stat(p.PicturePath); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("files of %s kept: %v", p.ID, err)
		}
	}
}

func TestDrainRejectedDeletesRecord(t *testing.T) {
	st, srv := setup(t)
	p := enqueue(t, st, "0001", "AAA")
	enqueue(t, st, "0002", "BBB")
	srv.SetStatus(remotetest.Tickets, http.StatusBadRequest)

	res, err := NewWorker(st, srv.Client(), nil, 0).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if res.Rejected != 2 || pending(t, st) != 0 {
		t.Errorf("rejected = %d, pending = %d", res.Rejected, pending(t, st))
	}
	if _, err := os.Stat(p.TicketPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("files of rejected upload kept: %v", err)
	}
}

func TestDrainKeepsRecordsWhenBoothRefused(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			st, srv := setup(t)
			enqueue(t, st, "0001", "AAA")
			enqueue(t, st, "0002", "BBB")
			srv.SetStatus(remotetest.Tickets, status)

			res, err := NewWorker(st, srv.Client(), nil, 0).Drain(context.Background())
			if !remote.IsRejected(err) {
				t.Fatalf("Drain() error = %v, want a rejection", err)
			}
			if !res.Failed || res.Rejected != 0 {
				t.Errorf("result = %+v", res)
			}
			if got := srv.Calls(remotetest.Tickets); got != 1 {
				t.Errorf("upload calls = %d, want 1", got)
			}
			if pending(t, st) != 2 {
				t.Errorf("pending = %d, want 2", pending(t, st))
			}

			// Fixing the token delivers the queue.
			srv.SetStatus(remotetest.Tickets, 0)
			if _, err := NewWorker(st, srv.Client(), nil, 0).Drain(context.Background()); err != nil {
				t.Fatal(err)
			}
			if pending(t, st) != 0 || len(srv.Tickets()) != 2 {
				t.Errorf("pending = %d, delivered = %d", pending(t, st), len(srv.Tickets()))
			}
		})
	}
}

func TestDrainTransientFailureStops(t *testing.T) {
	st, srv := setup(t)
	enqueue(t, st, "0001", "AAA")
	enqueue(t, st, "0002", "BBB")
	srv.SetStatus(remotetest.Tickets, http.StatusServiceUnavailable)

	res, err := NewWorker(st, srv.Client(), nil, 0).Drain(context.Background())
	if !errors.Is(err, remote.ErrRemoteUnavailable) {
		t.Fatalf("Drain() error = %v, want ErrRemoteUnavailable", err)
	}
	if !res.Failed {
		t.Error("result not flagged failed")
	}
	if got := srv.Calls(remotetest.Tickets); got != 1 {
		t.Errorf("upload calls = %d, want 1", got)
	}
	if pending(t, st) != 2 {
		t.Errorf("pending = %d, want 2", pending(t, st))
	}
	oldest, err := st.OldestPendingUpload(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if oldest.ID != "0001" || oldest.Attempts != 1 || oldest.LastError == "" {
		t.Errorf("oldest = %+v", oldest)
	}

	// The next run delivers everything once the remote is back.
	srv.SetStatus(remotetest.Tickets, 0)
	if _, err := NewWorker(st, srv.Client(), nil, 0).Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if pending(t, st) != 0 || len(srv.Tickets()) != 2 {
		t.Errorf("pending = %d, delivered = %d", pending(t, st), len(srv.Tickets()))
	}
}

func TestDrainDropsUploadWithMissingFiles(t *testing.T) {
	st, srv := setup(t)
	broken := enqueue(t, st, "0001", "AAA")
	enqueue(t, st, "0002", "BBB")
	if err := os.Remove(broken.PicturePath); err != nil {
		t.Fatal(err)
	}

	res, err := NewWorker(st, srv.Client(), nil, 0).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if res.Dropped != 1 || res.Uploaded != 1 {
		t.Errorf("result = %+v", res)
	}
	if got := srv.Calls(remotetest.Tickets); got != 1 {
		t.Errorf("upload calls = %d, want 1", got)
	}
	if pending(t, st) != 0 {
		t.Error("queue not empty")
	}
}

func TestDrainSkipsUploadedRecords(t *testing.T) {
	st, srv := setup(t)
	done := enqueue(t, st, "0001", "AAA")
	enqueue(t, st, "0002", "BBB")
	if err := st.MarkUploaded(context.Background(), done.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := NewWorker(st, srv.Client(), nil, 0).Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	tickets := srv.Tickets()
	if len(tickets) != 1 || tickets[0].Code != "BBB" {
		t.Errorf("delivered = %+v, want only BBB", tickets)
	}
	if _, err := os.Stat(done.PicturePath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("files of uploaded record kept: %v", err)
	}
}

func TestWorkerDrainsAfterSync(t *testing.T) {
	st, srv := setup(t)
	bus := events.NewBus(16)
	t.Cleanup(func() { _ = bus.Close() })

	w := NewWorker(st, srv.Client(), bus, time.Hour)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Stop() }()

	// Let the initial drain and the subscription settle.
	deadline := time.Now().Add(2 * time.Second)
	for w.LastResult().Finished.IsZero() {
		if time.Now().After(deadline) {
			t.Fatal("initial drain never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	enqueue(t, st, "0001", "AAA")
	deadline = time.Now().Add(2 * time.Second)
	for pending(t, st) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("queue not drained after sync")
		}
		if err := bus.Publish(context.Background(), events.TopicSyncCompleted, events.SyncCompleted{Changed: true, Time: time.Now()}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(srv.Tickets()) != 1 {
		t.Errorf("delivered = %d, want 1", len(srv.Tickets()))
	}
}
