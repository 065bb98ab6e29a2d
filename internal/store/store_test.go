// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/models"
)

func setupStore(t *testing.T, mutate func(*Config)) *Store {
	t.Helper()
	cfg := DefaultConfig("", t.TempDir())
	cfg.InMemory = true
	cfg.SyncWrites = false
	cfg.WriteRetryDelay = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func initialize(t *testing.T, s *Store) {
	t.Helper()
	if err := s.SaveInstallationIdentity(context.Background(), "inst-1", "pb-1"); err != nil {
		t.Fatalf("SaveInstallationIdentity() error = %v", err)
	}
}

func TestNotInitializedUntilIdentitySaved(t *testing.T) {
	s := setupStore(t, nil)
	ctx := context.Background()

	if s.Initialized() {
		t.Fatal("fresh store reports initialized")
	}
	if _, err := s.Installation(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Installation() error = %v, want ErrNotInitialized", err)
	}
	if _, err := s.TicketTemplate(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("TicketTemplate() error = %v, want ErrNotInitialized", err)
	}

	initialize(t, s)

	inst, err := s.Installation(ctx)
	if err != nil {
		t.Fatalf("Installation() error = %v", err)
	}
	if inst.PhotoboothID != "pb-1" || inst.Place != nil || inst.TicketTemplate != nil {
		t.Errorf("unexpected installation %+v", inst)
	}
}

func TestModifyNestedEntities(t *testing.T) {
	s := setupStore(t, nil)
	ctx := context.Background()
	initialize(t, s)

	t1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	wrote, err := s.ModifyPlace(ctx, func(cur *models.Place) (*models.Place, bool, error) {
		if cur != nil {
			t.Errorf("expected no place, got %+v", cur)
		}
		return &models.Place{ID: "p1", Name: "Cafe", Modified: t1}, true, nil
	})
	if err != nil || !wrote {
		t.Fatalf("ModifyPlace() = %v, %v", wrote, err)
	}

	wrote, err = s.ModifyPlace(ctx, func(cur *models.Place) (*models.Place, bool, error) {
		return cur, false, nil
	})
	if err != nil || wrote {
		t.Fatalf("no-op ModifyPlace() = %v, %v", wrote, err)
	}

	inst, err := s.Installation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Place == nil || inst.Place.Name != "Cafe" || !inst.Place.Modified.Equal(t1) {
		t.Errorf("place = %+v", inst.Place)
	}

	wrote, err = s.ModifyPlace(ctx, func(cur *models.Place) (*models.Place, bool, error) {
		return nil, true, nil
	})
	if err != nil || !wrote {
		t.Fatalf("delete ModifyPlace() = %v, %v", wrote, err)
	}
	if p, _ := s.Place(ctx); p != nil {
		t.Errorf("place not deleted: %+v", p)
	}
}

func TestPopCodeUniqueness(t *testing.T) {
	// Default retry budget: concurrent pops must not exhaust it.
	s := setupStore(t, nil)
	ctx := context.Background()

	const n = 400
	codes := make([]string, n)
	for i := range codes {
		codes[i] = fmt.Sprintf("CODE%04d", i)
	}
	if added, err := s.AddCodes(ctx, codes); err != nil || added != n {
		t.Fatalf("AddCodes() = %d, %v", added, err)
	}
	if count, _ := s.CountCodes(ctx); count != n {
		t.Fatalf("CountCodes() = %d, want %d", count, n)
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				code, err := s.PopCode(ctx)
				if errors.Is(err, ErrNoCodes) {
					return
				}
				if err != nil {
					t.Errorf("PopCode() error = %v", err)
					return
				}
				mu.Lock()
				seen[code]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("popped %d distinct codes, want %d", len(seen), n)
	}
	for code, times := range seen {
		if times != 1 {
			t.Errorf("code %s issued %d times", code, times)
		}
	}
	if count, _ := s.CountCodes(ctx); count != 0 {
		t.Errorf("pool not empty: %d", count)
	}
	if _, err := s.PopCode(ctx); !errors.Is(err, ErrNoCodes) {
		t.Errorf("PopCode() on empty pool error = %v, want ErrNoCodes", err)
	}
}

func TestTicketCounterConcurrentIncrements(t *testing.T) {
	s := setupStore(t, func(c *Config) { c.WriteRetryAttempts = 100 })
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementTicketCounter(ctx); err != nil {
				t.Errorf("IncrementTicketCounter() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got, _ := s.TicketCounter(ctx); got != 20 {
		t.Errorf("TicketCounter() = %d, want 20", got)
	}
}

func TestPaperLevel(t *testing.T) {
	s := setupStore(t, nil)
	ctx := context.Background()

	if lvl, _ := s.PaperLevel(ctx); lvl != 100 {
		t.Errorf("default PaperLevel() = %v, want 100", lvl)
	}
	if lvl, _ := s.ConsumePaper(ctx, 30); lvl != 70 {
		t.Errorf("ConsumePaper(30) = %v, want 70", lvl)
	}
	if lvl, _ := s.ConsumePaper(ctx, 500); lvl != 0 {
		t.Errorf("ConsumePaper(500) = %v, want 0", lvl)
	}
	if lvl, _ := s.SetPaperLevel(ctx, 140); lvl != 100 {
		t.Errorf("SetPaperLevel(140) = %v, want 100", lvl)
	}
	if lvl, _ := s.PaperLevel(ctx); lvl != 100 {
		t.Errorf("PaperLevel() = %v, want 100", lvl)
	}
}

func TestNextSequentialIndexRotates(t *testing.T) {
	s := setupStore(t, nil)
	ctx := context.Background()

	var got []int
	for i := 0; i < 5; i++ {
		idx, err := s.NextSequentialIndex(ctx, "v1", 3)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, idx)
	}
	want := []int{0, 1, 2, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation = %v, want %v", got, want)
		}
	}

	// shrinking the item set keeps the cursor in range
	if idx, _ := s.NextSequentialIndex(ctx, "v1", 1); idx != 0 {
		t.Errorf("index after shrink = %d, want 0", idx)
	}
	if _, err := s.NextSequentialIndex(ctx, "v1", 0); err == nil {
		t.Error("expected error for empty variable")
	}
}

func writePortrait(t *testing.T, s *Store, id string) (string, string) {
	t.Helper()
	pic, ticket := s.PortraitPaths(id)
	if err := WriteFile(pic, []byte("jpeg")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(ticket, []byte("png")); err != nil {
		t.Fatal(err)
	}
	return pic, ticket
}

func TestPendingUploadLifecycle(t *testing.T) {
	s := setupStore(t, nil)
	ctx := context.Background()

	if _, err := s.OldestPendingUpload(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("OldestPendingUpload() on empty queue error = %v", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		id := NewUploadID()
		pic, ticket := writePortrait(t, s, id)
		p := &models.PendingUpload{
			ID: id, PicturePath: pic, TicketPath: ticket,
			Taken: time.Now(), PhotoboothID: "pb-1", Code: fmt.Sprintf("C%d", i),
		}
		if err := s.EnqueuePendingUpload(ctx, p); err != nil {
			t.Fatalf("EnqueuePendingUpload() error = %v", err)
		}
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	oldest, err := s.OldestPendingUpload(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if oldest.ID != ids[0] || oldest.Code != "C0" {
		t.Errorf("oldest = %s/%s, want %s/C0", oldest.ID, oldest.Code, ids[0])
	}

	if err := s.MarkUploaded(ctx, ids[0]); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordUploadFailure(ctx, ids[1], errors.New("timeout")); err != nil {
		t.Fatal(err)
	}
	list, _ := s.ListPendingUploads(ctx)
	if len(list) != 3 || !list[0].Uploaded || list[1].Attempts != 1 || list[1].LastError != "timeout" {
		t.Errorf("unexpected queue state %+v", list)
	}

	if err := s.DeletePendingUpload(ctx, ids[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(oldest.PicturePath); !os.IsNotExist(err) {
		t.Errorf("picture not removed: %v", err)
	}
	if _, err := os.Stat(oldest.TicketPath); !os.IsNotExist(err) {
		t.Errorf("ticket not removed: %v", err)
	}
	if n, _ := s.CountPendingUploads(ctx); n != 2 {
		t.Errorf("CountPendingUploads() = %d, want 2", n)
	}
	if err := s.DeletePendingUpload(ctx, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestEnqueueRequiresFiles(t *testing.T) {
	s := setupStore(t, nil)
	p := &models.PendingUpload{PicturePath: "/nonexistent/p.jpg", TicketPath: "/nonexistent/t.png"}
	if err := s.EnqueuePendingUpload(context.Background(), p); err == nil {
		t.Fatal("expected error for missing files")
	}
	if n, _ := s.CountPendingUploads(context.Background()); n != 0 {
		t.Errorf("record written despite missing files")
	}
}

func TestSweepOrphans(t *testing.T) {
	s := setupStore(t, func(c *Config) { c.OrphanGracePeriod = 0 })
	ctx := context.Background()

	id := NewUploadID()
	pic, ticket := writePortrait(t, s, id)
	if err := s.EnqueuePendingUpload(ctx, &models.PendingUpload{ID: id, PicturePath: pic, TicketPath: ticket}); err != nil {
		t.Fatal(err)
	}
	orphan, _ := s.PortraitPaths("orphan")
	if err := WriteFile(orphan, []byte("x")); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	for _, p := range []string{pic, ticket, orphan} {
		_ = os.Chtimes(p, old, old)
	}

	removed, err := s.SweepOrphans(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphan survived")
	}
	if _, err := os.Stat(pic); err != nil {
		t.Errorf("referenced picture removed: %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(filepath.Join(dir, "db"), filepath.Join(dir, "media"))
	ctx := context.Background()

	s, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.IncrementTicketCounter(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddCodes(ctx, []string{"A", "B"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if n, _ := s.TicketCounter(ctx); n != 1 {
		t.Errorf("TicketCounter() after reopen = %d, want 1", n)
	}
	if n, _ := s.CountCodes(ctx); n != 2 {
		t.Errorf("CountCodes() after reopen = %d, want 2", n)
	}
}

func TestOpenRecoversFromCorruptDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db")
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dbPath, "MANIFEST"), []byte("definitely not a manifest"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(DefaultConfig(dbPath, filepath.Join(dir, "media")))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if !s.Recovered() {
		t.Error("expected Recovered() after corrupt manifest")
	}
	if _, err := s.Installation(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Installation() error = %v, want ErrNotInitialized", err)
	}
	matches, _ := filepath.Glob(dbPath + ".corrupt-*")
	if len(matches) != 1 {
		t.Errorf("corrupt copy not kept aside: %v", matches)
	}
}

func TestClosedStore(t *testing.T) {
	s := setupStore(t, nil)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PopCode(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("PopCode() after Close error = %v, want ErrClosed", err)
	}
}
