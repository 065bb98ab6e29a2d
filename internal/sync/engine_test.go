// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package sync

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

type fixture struct {
	srv    *remotetest.Server
	store  *store.Store
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := remotetest.NewServer(t)
	st, err := store.OpenForTesting(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return &fixture{srv: srv, store: st, engine: NewEngine(st, srv.Client(), nil, DefaultConfig())}
}

// installation builds a snapshot whose media is served by srv.
func (f *fixture) installation() *models.Installation {
	logo := f.srv.AddMedia("logo.png", []byte("logo"))
	cat := f.srv.AddMedia("cat.png", []byte("cat"))
	dog := f.srv.AddMedia("dog.png", []byte("dog"))
	return &models.Installation{
		ID:           "inst-1",
		PhotoboothID: "pb-1",
		Place:        &models.Place{ID: "place-1", Name: "Cafe", Timezone: "Europe/Paris", Modified: jan},
		Event:        &models.Event{ID: "event-1", Name: "Wedding", Modified: jan},
		TicketTemplate: &models.TicketTemplate{
			ID:       "tpl-1",
			HTML:     "<p>{{.Code}}</p>",
			Modified: jan,
			TextVariables: []models.TextVariable{{
				ID: "tv1", Name: "greeting", Mode: models.ModeSequential, Modified: jan,
				Items: []models.TextItem{{ID: "t1", Text: "hello"}, {ID: "t2", Text: "bonjour"}},
			}},
			ImageVariables: []models.ImageVariable{{
				ID: "iv1", Name: "animal", Mode: models.ModeRandom, Modified: jan,
				Items: []models.Image{{ID: "cat", URL: cat}, {ID: "dog", URL: dog}},
			}},
			Images: []models.Image{{ID: "logo", URL: logo}},
		},
	}
}

func TestReconcileCreatesInstallation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.srv.SetInstallation(f.installation())

	changed, err := f.engine.Reconcile(ctx)
	if err != nil || !changed {
		t.Fatalf("Reconcile() = %v, %v", changed, err)
	}

	inst, err := f.store.Installation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Place == nil || inst.Event == nil || inst.TicketTemplate == nil {
		t.Fatalf("installation incomplete: %+v", inst)
	}
	imgs := templateImages(inst.TicketTemplate)
	if len(imgs) != 3 {
		t.Fatalf("got %d images", len(imgs))
	}
	for _, img := range imgs {
		data, err := os.ReadFile(img.Path)
		if err != nil {
			t.Errorf("image %s not on disk: %v", img.ID, err)
			continue
		}
		if string(data) != img.ID {
			t.Errorf("image %s content = %q", img.ID, data)
		}
	}
	if got := f.srv.Calls(remotetest.Media); got != 3 {
		t.Errorf("downloads = %d, want 3", got)
	}
	if !f.engine.Online() {
		t.Error("engine not online after a successful reconcile")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.srv.SetInstallation(f.installation())

	if _, err := f.engine.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	downloads := f.srv.Calls(remotetest.Media)

	changed, err := f.engine.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("second reconcile reported changes")
	}
	if got := f.srv.Calls(remotetest.Media); got != downloads {
		t.Errorf("second reconcile downloaded %d files", got-downloads)
	}
}

func TestTemplateLastModifiedWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst := f.installation()
	f.srv.SetInstallation(inst)
	if _, err := f.engine.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	// Same timestamp, different html: no write.
	same := *inst
	tpl := *inst.TicketTemplate
	tpl.HTML = "<p>changed</p>"
	same.TicketTemplate = &tpl
	f.srv.SetInstallation(&same)

	changed, err := f.engine.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := f.store.TicketTemplate(ctx)
	if changed || got.HTML != "<p>{{.Code}}</p>" {
		t.Errorf("equal timestamp overwrote template: changed=%v html=%q", changed, got.HTML)
	}

	// Newer timestamp: html and modified follow the remote.
	tpl.Modified = feb
	f.srv.SetInstallation(&same)
	changed, err = f.engine.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got, _ = f.store.TicketTemplate(ctx)
	if !changed || got.HTML != "<p>changed</p>" || !got.Modified.Equal(feb) {
		t.Errorf("newer template not applied: changed=%v got html=%q modified=%v", changed, got.HTML, got.Modified)
	}
}

func TestReconcileItemSetDifference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst := f.installation()
	f.srv.SetInstallation(inst)
	if _, err := f.engine.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := f.store.TicketTemplate(ctx)
	catPath := before.ImageVariables[0].Items[0].Path

	// Drop the cat, add a bird; the variable timestamp does not move.
	bird := f.srv.AddMedia("bird.png", []byte("bird"))
	tpl := *inst.TicketTemplate
	iv := tpl.ImageVariables[0]
	iv.Items = []models.Image{iv.Items[1], {ID: "bird", URL: bird}}
	tpl.ImageVariables = []models.ImageVariable{iv}
	next := *inst
	next.TicketTemplate = &tpl
	f.srv.SetInstallation(&next)

	downloads := f.srv.Calls(remotetest.Media)
	changed, err := f.engine.Reconcile(ctx)
	if err != nil || !changed {
		t.Fatalf("Reconcile() = %v, %v", changed, err)
	}
	if got := f.srv.Calls(remotetest.Media) - downloads; got != 1 {
		t.Errorf("downloads = %d, want only the new item", got)
	}

	after, _ := f.store.TicketTemplate(ctx)
	items := after.ImageVariables[0].Items
	if len(items) != 2 || items[0].ID != "dog" || items[1].ID != "bird" || items[1].Path == "" {
		t.Errorf("items = %+v", items)
	}
	if _, err := os.Stat(catPath); !os.IsNotExist(err) {
		t.Errorf("removed item file still on disk: %v", err)
	}
}

func TestReconcileRemoteAbsentDeletesLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst := f.installation()
	f.srv.SetInstallation(inst)
	if _, err := f.engine.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	tpl, _ := f.store.TicketTemplate(ctx)
	paths := mediaPaths(tpl)

	bare := &models.Installation{ID: inst.ID, PhotoboothID: inst.PhotoboothID, Place: inst.Place}
	f.srv.SetInstallation(bare)
	if _, err := f.engine.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := f.store.Installation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Event != nil || got.TicketTemplate != nil {
		t.Errorf("absent entities kept: %+v", got)
	}
	if got.Place == nil {
		t.Error("place deleted")
	}
	for p := range paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("media %s not removed", p)
		}
	}
}

func TestReconcileReplacesDifferentIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst := f.installation()
	f.srv.SetInstallation(inst)
	if _, err := f.engine.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	other := *inst
	other.Place = &models.Place{ID: "place-2", Name: "Bar", Modified: jan.Add(-time.Hour)}
	f.srv.SetInstallation(&other)
	if _, err := f.engine.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	p, _ := f.store.Place(ctx)
	if p == nil || p.ID != "place-2" || p.Name != "Bar" {
		t.Errorf("place = %+v, want the new identity even with an older timestamp", p)
	}
}

func TestReconcileFailureLeavesStoreUnchanged(t *testing.T) {
	t.Run("uninitialized stays uninitialized", func(t *testing.T) {
		f := newFixture(t)
		f.srv.SetInstallation(f.installation())
		f.srv.SetStatus(remotetest.Installation, http.StatusServiceUnavailable)

		_, err := f.engine.Reconcile(context.Background())
		if !errors.Is(err, remote.ErrRemoteUnavailable) {
			t.Fatalf("error = %v, want ErrRemoteUnavailable", err)
		}
		if f.store.Initialized() {
			t.Error("store initialized by a failed reconcile")
		}
		if f.engine.Online() {
			t.Error("engine online after a failed reconcile")
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		f := newFixture(t)
		f.srv.SetMalformed(true)
		if _, err := f.engine.Reconcile(context.Background()); !errors.Is(err, remote.ErrMalformedResponse) {
			t.Fatalf("error = %v, want ErrMalformedResponse", err)
		}
		if f.store.Initialized() {
			t.Error("store initialized from a malformed payload")
		}
	})

	t.Run("media failure writes nothing", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		inst := f.installation()
		f.srv.SetInstallation(inst)
		if _, err := f.engine.Reconcile(ctx); err != nil {
			t.Fatal(err)
		}

		next := *inst
		next.Place = &models.Place{ID: "place-1", Name: "Renamed", Modified: feb}
		tpl := *inst.TicketTemplate
		tpl.Images = append(append([]models.Image(nil), tpl.Images...), models.Image{ID: "gone", URL: f.srv.URL + "/media/gone.png"})
		next.TicketTemplate = &tpl
		f.srv.SetInstallation(&next)

		if _, err := f.engine.Reconcile(ctx); err == nil {
			t.Fatal("expected download failure")
		}
		p, _ := f.store.Place(ctx)
		if p.Name != "Cafe" {
			t.Errorf("place written despite failure: %+v", p)
		}
		got, _ := f.store.TicketTemplate(ctx)
		if len(got.Images) != 1 {
			t.Errorf("template written despite failure: %+v", got.Images)
		}
	})
}

func TestClaimNewCodesIfNecessary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	added, err := f.engine.ClaimNewCodesIfNecessary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if added != 10000 {
		t.Errorf("added = %d, want 10000", added)
	}

	added, err = f.engine.ClaimNewCodesIfNecessary(ctx)
	if err != nil || added != 0 {
		t.Errorf("second call = %d, %v", added, err)
	}
	if got := f.srv.Calls(remotetest.Claim); got != 1 {
		t.Errorf("claim calls = %d, want 1", got)
	}

	// Drain below the low water mark.
	for i := 0; i < 9001; i++ {
		if _, err := f.store.PopCode(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.engine.ClaimNewCodesIfNecessary(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.srv.Calls(remotetest.Claim); got != 2 {
		t.Errorf("claim calls = %d, want 2 once below 1000", got)
	}
}

func TestClaimFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.srv.SetStatus(remotetest.Claim, http.StatusBadGateway)
	if _, err := f.engine.ClaimNewCodesIfNecessary(context.Background()); !errors.Is(err, remote.ErrRemoteUnavailable) {
		t.Errorf("error = %v", err)
	}
	if n, _ := f.store.CountCodes(context.Background()); n != 0 {
		t.Errorf("codes added despite failure: %d", n)
	}
}

func TestReportDeviceSendsPaperOnChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.ReportDevice(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.ReportDevice(ctx); err != nil {
		t.Fatal(err)
	}
	reports := f.srv.Reports()
	if len(reports) != 1 || reports[0].PaperLevel == nil || *reports[0].PaperLevel != 100 {
		t.Fatalf("reports = %+v", reports)
	}

	if _, err := f.store.SetPaperLevel(ctx, 55); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.ReportDevice(ctx); err != nil {
		t.Fatal(err)
	}
	reports = f.srv.Reports()
	if len(reports) != 2 || *reports[1].PaperLevel != 55 || reports[1].MACAddresses != nil {
		t.Errorf("second report = %+v", reports[len(reports)-1])
	}
}

func TestCodesCheckEvent(t *testing.T) {
	srv := remotetest.NewServer(t)
	st, err := store.OpenForTesting(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	bus := events.NewBus(16)
	defer bus.Close()

	cfg := DefaultConfig()
	cfg.CodesBatchSize = 50
	engine := NewEngine(st, srv.Client(), bus, cfg)

	// Not configured remotely: the boot sync fails and claims nothing.
	if err := engine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = engine.Stop() }()

	deadline := time.Now().Add(3 * time.Second)
	for srv.Calls(remotetest.Claim) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("codes check event never handled")
		}
		_ = bus.Publish(context.Background(), events.TopicCodesCheck, events.CodesCheck{Reason: "test"})
		time.Sleep(20 * time.Millisecond)
	}

	deadline = time.Now().Add(3 * time.Second)
	for {
		n, _ := st.CountCodes(context.Background())
		if n == 50 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("codes = %d, want 50", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
