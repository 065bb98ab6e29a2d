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
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
)

// RunGC runs Badger value log GC until nothing is left to rewrite. It
// reports whether any file was rewritten.
func (s *Store) RunGC() (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if s.cfg.InMemory {
		return false, nil
	}
	reclaimed := false
	for {
		err := s.db.RunValueLogGC(s.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return reclaimed, nil
		}
		if err != nil {
			return reclaimed, fmt.Errorf("run GC: %w", err)
		}
		reclaimed = true
	}
}

// ReferencedMedia returns every media path a record still points at.
func (s *Store) ReferencedMedia(ctx context.Context) (map[string]struct{}, error) {
	refs := make(map[string]struct{})

	uploads, err := s.ListPendingUploads(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range uploads {
		refs[p.PicturePath] = struct{}{}
		refs[p.TicketPath] = struct{}{}
	}

	tpl, err := s.TicketTemplate(ctx)
	if err != nil && !errors.Is(err, ErrNotInitialized) {
		return nil, err
	}
	if tpl != nil {
		for _, img := range tpl.Images {
			refs[img.Path] = struct{}{}
		}
		for _, v := range tpl.ImageVariables {
			for _, img := range v.Items {
				refs[img.Path] = struct{}{}
			}
		}
	}
	delete(refs, "")
	return refs, nil
}

// SweepOrphans removes media files no record references. Files younger
// than OrphanGracePeriod are kept: a trigger writes its files before the
// record that references them.
func (s *Store) SweepOrphans(ctx context.Context) (int, error) {
	refs, err := s.ReferencedMedia(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-s.cfg.OrphanGracePeriod)

	removed := 0
	for _, sub := range []string{imagesDir, portraitsDir} {
		entries, err := os.ReadDir(filepath.Join(s.cfg.MediaDir, sub))
		if err != nil {
			return removed, fmt.Errorf("read media dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			p := filepath.Join(s.cfg.MediaDir, sub, e.Name())
			if _, ok := refs[p]; ok {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			// Leftover temp files of interrupted writes go too.
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				logging.Warn().Err(err).Str("path", p).Msg("Failed to remove orphan media")
				continue
			}
			removed++
			logging.Debug().Str("path", p).Bool("temp", strings.HasPrefix(e.Name(), ".tmp-")).Msg("Removed orphan media")
		}
	}
	if removed > 0 {
		metrics.OrphanFilesRemoved.Add(float64(removed))
	}
	return removed, nil
}

// Compactor periodically runs value log GC and the orphan media sweep.
type Compactor struct {
	store    *Store
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewCompactor creates a compactor for s.
func NewCompactor(s *Store) *Compactor {
	interval := s.cfg.CompactionInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Compactor{store: s, interval: interval}
}

// Start begins the background loop. It runs one pass immediately.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	logging.Info().Dur("interval", c.interval).Msg("Store compactor started")
	return nil
}

// Stop stops the loop and waits for an in-flight pass.
func (c *Compactor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("Store compactor stopped")
}

// IsRunning reports whether the loop is active.
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastRun returns when the last pass finished.
func (c *Compactor) LastRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

func (c *Compactor) run() {
	defer c.wg.Done()

	c.RunNow(c.ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.RunNow(c.ctx)
		}
	}
}

// RunNow performs one GC and sweep pass and refreshes the store gauges.
func (c *Compactor) RunNow(ctx context.Context) {
	start := time.Now()

	reclaimed, err := c.store.RunGC()
	metrics.RecordGC(reclaimed, err)
	if err != nil {
		logging.Error().Err(err).Msg("Store GC failed")
	}

	removed, err := c.store.SweepOrphans(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Orphan media sweep failed")
	}

	if n, err := c.store.CountPendingUploads(ctx); err == nil {
		metrics.PendingUploads.Set(float64(n))
	}
	if n, err := c.store.CountCodes(ctx); err == nil {
		metrics.CodesRemaining.Set(float64(n))
	}

	c.mu.Lock()
	c.lastRun = time.Now()
	c.mu.Unlock()

	logging.Debug().
		Bool("reclaimed", reclaimed).
		Int("orphans_removed", removed).
		Dur("duration", time.Since(start)).
		Msg("Store compaction finished")
}
