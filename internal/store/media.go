// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
)

const (
	imagesDir    = "images"
	portraitsDir = "portraits"
)

func prepareMediaDirs(root string) error {
	for _, d := range []string{imagesDir, portraitsDir} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return fmt.Errorf("create media dir: %w", err)
		}
	}
	return nil
}

// MediaDir returns the media root.
func (s *Store) MediaDir() string {
	return s.cfg.MediaDir
}

// ImagePath returns the local path of the template image downloaded from
// url. The name is a hash of the URL, so re-downloading the same image
// lands on the same file.
func (s *Store) ImagePath(url string) string {
	sum := blake3.Sum256([]byte(url))
	ext := strings.ToLower(path.Ext(strings.SplitN(url, "?", 2)[0]))
	if len(ext) > 5 {
		ext = ""
	}
	return filepath.Join(s.cfg.MediaDir, imagesDir, hex.EncodeToString(sum[:12])+ext)
}

// PortraitPaths returns where the picture and ticket of an upload live.
func (s *Store) PortraitPaths(id string) (picture, ticket string) {
	dir := filepath.Join(s.cfg.MediaDir, portraitsDir)
	return filepath.Join(dir, id+"-picture.jpg"), filepath.Join(dir, id+"-ticket.png")
}

// WriteFile durably writes data to path: temp file, fsync, rename, fsync
// of the directory.
func WriteFile(path string, data []byte) error {
	return WriteFileFrom(context.Background(), path, bytes.NewReader(data))
}

// WriteFileFrom is WriteFile streaming from r.
func WriteFileFrom(ctx context.Context, path string, r io.Reader) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, ctxReader{ctx: ctx, r: r}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// RemoveFiles deletes files, ignoring empty paths and files already gone.
func (s *Store) RemoveFiles(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", p).Msg("Failed to remove media file")
		}
	}
}
