// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/events"
	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
	"github.com/Postcard/figure-raspbian-sub000/internal/models"
	"github.com/Postcard/figure-raspbian-sub000/internal/store"
)

// Remote is the part of the backend client the engine uses.
type Remote interface {
	GetInstallation(ctx context.Context) (*models.Installation, error)
	ClaimCodes(ctx context.Context, n int) ([]string, error)
	UpdateDevice(ctx context.Context, report models.DeviceReport) error
	Download(ctx context.Context, url string, fn func(io.Reader) error) error
}

// Config tunes the engine.
type Config struct {
	// Interval between scheduled reconciles.
	Interval time.Duration

	// CodesLowWater is the pool size below which codes are claimed.
	CodesLowWater int

	// CodesBatchSize is how many codes one claim asks for.
	CodesBatchSize int

	// ReportInterval between device reports.
	ReportInterval time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Minute,
		CodesLowWater:  1000,
		CodesBatchSize: 10000,
		ReportInterval: 10 * time.Minute,
	}
}

// Status is a snapshot of the engine's view of the backend.
type Status struct {
	Online      bool      `json:"online"`
	LastSync    time.Time `json:"last_sync"`
	LastAttempt time.Time `json:"last_attempt"`
	LastError   string    `json:"last_error,omitempty"`
}

// Engine reconciles the store with the backend.
type Engine struct {
	store  *store.Store
	remote Remote
	bus    *events.Bus
	cfg    Config

	syncMu  sync.Mutex // serializes reconciles
	codesMu sync.Mutex // serializes code claims

	mu                sync.RWMutex
	status            Status
	lastReportedPaper *float64
	macsReported      bool

	// background loop
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewEngine creates an engine. bus may be nil.
func NewEngine(st *store.Store, remote Remote, bus *events.Bus, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.CodesLowWater <= 0 {
		cfg.CodesLowWater = def.CodesLowWater
	}
	if cfg.CodesBatchSize <= 0 {
		cfg.CodesBatchSize = def.CodesBatchSize
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = def.ReportInterval
	}
	return &Engine{store: st, remote: remote, bus: bus, cfg: cfg}
}

// Status returns the last known backend status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Online reports whether the last reconcile reached the backend.
func (e *Engine) Online() bool {
	return e.Status().Online
}

func (e *Engine) recordAttempt(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.status.LastAttempt = now
	if err != nil {
		e.status.LastError = err.Error()
		// A store failure says nothing about connectivity.
		if !isLocalFailure(err) {
			e.status.Online = false
		}
		return
	}
	e.status.Online = true
	e.status.LastSync = now
	e.status.LastError = ""
}

func isLocalFailure(err error) bool {
	return errors.Is(err, store.ErrWriteConflict) || errors.Is(err, store.ErrClosed)
}

// Reconcile fetches the installation and merges it into the store. It
// reports whether anything was written. On error the store is unchanged,
// except when a later entity write fails after an earlier one committed;
// each entity is still written atomically.
func (e *Engine) Reconcile(ctx context.Context) (bool, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	start := time.Now()
	changed, err := e.reconcile(ctx)
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	metrics.RecordSync("reconcile", err)
	e.recordAttempt(err)

	ev := events.SyncCompleted{Changed: changed, Time: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		logging.Ctx(ctx).Warn().Err(err).Msg("Reconcile failed, keeping local installation")
	} else {
		logging.Ctx(ctx).Info().
			Bool("changed", changed).
			Dur("duration", time.Since(start)).
			Msg("Reconcile finished")
	}
	e.publish(ctx, events.TopicSyncCompleted, ev)
	return changed, err
}

func (e *Engine) reconcile(ctx context.Context) (bool, error) {
	inst, err := e.remote.GetInstallation(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch installation: %w", err)
	}

	local, err := e.store.TicketTemplate(ctx)
	if err != nil && !errors.Is(err, store.ErrNotInitialized) {
		return false, err
	}

	// Everything that can fail remotely happens before the first write.
	paths, err := e.fetchMedia(ctx, local, inst.TicketTemplate)
	if err != nil {
		return false, err
	}

	wasInitialized := e.store.Initialized()
	if err := e.store.SaveInstallationIdentity(ctx, inst.ID, inst.PhotoboothID); err != nil {
		return false, err
	}
	changed := !wasInitialized

	wrote, err := e.store.ModifyPlace(ctx, func(cur *models.Place) (*models.Place, bool, error) {
		next, write := mergeEntity(cur, inst.Place, placeID, placeModified)
		return next, write, nil
	})
	if err != nil {
		return changed, fmt.Errorf("merge place: %w", err)
	}
	changed = changed || wrote

	wrote, err = e.store.ModifyEvent(ctx, func(cur *models.Event) (*models.Event, bool, error) {
		next, write := mergeEntity(cur, inst.Event, eventID, eventModified)
		return next, write, nil
	})
	if err != nil {
		return changed, fmt.Errorf("merge event: %w", err)
	}
	changed = changed || wrote

	var before, after *models.TicketTemplate
	wrote, err = e.store.ModifyTicketTemplate(ctx, func(cur *models.TicketTemplate) (*models.TicketTemplate, bool, error) {
		next, write := mergeTemplate(cur, inst.TicketTemplate, paths)
		before, after = cur, next
		return next, write, nil
	})
	if err != nil {
		return changed, fmt.Errorf("merge ticket template: %w", err)
	}
	if wrote {
		e.cleanupTemplate(ctx, before, after)
	}
	return changed || wrote, nil
}

// fetchMedia downloads the images the merged template needs and does not
// have on disk yet. It returns URL to local path for each download.
func (e *Engine) fetchMedia(ctx context.Context, local, remote *models.TicketTemplate) (map[string]string, error) {
	plan, _ := mergeTemplate(local, remote, nil)

	paths := make(map[string]string)
	for _, img := range templateImages(plan) {
		if img.URL == "" {
			continue
		}
		if _, done := paths[img.URL]; done {
			continue
		}
		if img.Path != "" {
			if _, err := os.Stat(img.Path); err == nil {
				continue
			}
			logging.Warn().Str("path", img.Path).Msg("Template media missing on disk, downloading again")
		}

		path := e.store.ImagePath(img.URL)
		err := e.remote.Download(ctx, img.URL, func(r io.Reader) error {
			return store.WriteFileFrom(ctx, path, r)
		})
		if err != nil {
			metrics.MediaDownloads.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("download %s: %w", img.URL, err)
		}
		metrics.MediaDownloads.WithLabelValues("success").Inc()
		paths[img.URL] = path
	}
	return paths, nil
}

// cleanupTemplate removes files and rotation cursors the new template no
// longer uses.
func (e *Engine) cleanupTemplate(ctx context.Context, before, after *models.TicketTemplate) {
	keep := mediaPaths(after)
	var stale []string
	for p := range mediaPaths(before) {
		if _, ok := keep[p]; !ok {
			stale = append(stale, p)
		}
	}
	e.store.RemoveFiles(stale...)

	keepVars := variableIDs(after)
	for id := range variableIDs(before) {
		if _, ok := keepVars[id]; ok {
			continue
		}
		if err := e.store.DeleteSequentialCursor(ctx, id); err != nil {
			logging.Warn().Err(err).Str("variable", id).Msg("Failed to delete rotation cursor")
		}
	}
}

// ClaimNewCodesIfNecessary claims CodesBatchSize codes when fewer than
// CodesLowWater remain. It returns how many codes were added.
func (e *Engine) ClaimNewCodesIfNecessary(ctx context.Context) (int, error) {
	e.codesMu.Lock()
	defer e.codesMu.Unlock()

	count, err := e.store.CountCodes(ctx)
	if err != nil {
		return 0, err
	}
	metrics.CodesRemaining.Set(float64(count))
	if count >= e.cfg.CodesLowWater {
		return 0, nil
	}

	codes, err := e.remote.ClaimCodes(ctx, e.cfg.CodesBatchSize)
	if err != nil {
		metrics.RecordSync("codes", err)
		logging.Ctx(ctx).Warn().Err(err).Int("remaining", count).Msg("Code claim failed")
		return 0, fmt.Errorf("claim codes: %w", err)
	}
	added, err := e.store.AddCodes(ctx, codes)
	metrics.RecordSync("codes", err)
	if err != nil {
		return 0, err
	}
	logging.Ctx(ctx).Info().Int("added", added).Int("previous", count).Msg("Code pool replenished")
	return added, nil
}

// ReportDevice sends the paper level when it changed since the last report
// and the MAC addresses once per process.
func (e *Engine) ReportDevice(ctx context.Context) error {
	var report models.DeviceReport

	level, err := e.store.PaperLevel(ctx)
	if err != nil {
		return err
	}
	e.mu.RLock()
	if e.lastReportedPaper == nil || *e.lastReportedPaper != level {
		report.PaperLevel = &level
	}
	if !e.macsReported {
		report.MACAddresses = macAddresses()
	}
	e.mu.RUnlock()

	if report.PaperLevel == nil && len(report.MACAddresses) == 0 {
		return nil
	}

	err = e.remote.UpdateDevice(ctx, report)
	metrics.RecordSync("report", err)
	if err != nil {
		return fmt.Errorf("report device: %w", err)
	}

	e.mu.Lock()
	if report.PaperLevel != nil {
		e.lastReportedPaper = report.PaperLevel
	}
	if len(report.MACAddresses) > 0 {
		e.macsReported = true
	}
	e.mu.Unlock()
	return nil
}

// SyncOnce runs a reconcile, a code check and a device report. Only the
// reconcile error is returned; the others are logged.
func (e *Engine) SyncOnce(ctx context.Context) error {
	_, err := e.Reconcile(ctx)
	if err != nil {
		return err
	}
	if _, cerr := e.ClaimNewCodesIfNecessary(ctx); cerr != nil {
		logging.Ctx(ctx).Warn().Err(cerr).Msg("Code check failed")
	}
	if rerr := e.ReportDevice(ctx); rerr != nil {
		logging.Ctx(ctx).Warn().Err(rerr).Msg("Device report failed")
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, topic string, payload interface{}) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, topic, payload); err != nil && !errors.Is(err, events.ErrBusClosed) {
		logging.Debug().Err(err).Str("topic", topic).Msg("Event publish failed")
	}
}
