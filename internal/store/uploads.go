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
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
	"github.com/Postcard/figure-raspbian-sub000/internal/models"
)

// NewUploadID returns a time ordered id, so key order is capture order.
func NewUploadID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// EnqueuePendingUpload durably queues p. Its files must already exist.
func (s *Store) EnqueuePendingUpload(ctx context.Context, p *models.PendingUpload) error {
	if p.ID == "" {
		p.ID = NewUploadID()
	}
	for _, path := range []string{p.PicturePath, p.TicketPath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("pending upload %s: %w", p.ID, err)
		}
	}

	err := s.updateRetry(ctx, "enqueue_upload", func(txn *badger.Txn) error {
		return setJSON(txn, prefixUpload+p.ID, p)
	})
	if err != nil {
		return err
	}
	metrics.PendingUploads.Inc()
	logging.Ctx(ctx).Info().
		Str("upload_id", p.ID).
		Str("code", p.Code).
		Msg("Ticket queued for upload")
	return nil
}

// OldestPendingUpload returns the oldest queued record, or ErrNotFound.
// An undecodable record is returned with only its ID set, together with
// ErrCorruptRecord, so the caller can discard it.
func (s *Store) OldestPendingUpload(_ context.Context) (*models.PendingUpload, error) {
	var rec *models.PendingUpload
	var decodeErr error
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixUpload)
		opts.PrefetchSize = 1
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return ErrNotFound
		}
		item := it.Item()
		id := strings.TrimPrefix(string(item.Key()), prefixUpload)
		return item.Value(func(val []byte) error {
			var p models.PendingUpload
			if err := json.Unmarshal(val, &p); err != nil {
				rec = &models.PendingUpload{ID: id}
				decodeErr = fmt.Errorf("%w: upload %s: %v", ErrCorruptRecord, id, err)
				return nil
			}
			p.ID = id
			rec = &p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, decodeErr
}

// ListPendingUploads returns every queued record, oldest first. Corrupt
// records are skipped.
func (s *Store) ListPendingUploads(ctx context.Context) ([]*models.PendingUpload, error) {
	var out []*models.PendingUpload
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixUpload)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var p models.PendingUpload
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping unreadable pending upload")
				continue
			}
			out = append(out, &p)
		}
		return nil
	})
	return out, err
}

// CountPendingUploads returns the queue length.
func (s *Store) CountPendingUploads(_ context.Context) (int, error) {
	n := 0
	err := s.view(func(txn *badger.Txn) error {
		n = len(prefixKeys(txn, prefixUpload, 0))
		return nil
	})
	return n, err
}

func (s *Store) modifyUpload(ctx context.Context, name, id string, fn func(p *models.PendingUpload)) error {
	return s.updateRetry(ctx, name, func(txn *badger.Txn) error {
		var p models.PendingUpload
		ok, err := getJSON(txn, prefixUpload+id, &p)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		fn(&p)
		return setJSON(txn, prefixUpload+id, &p)
	})
}

// MarkUploaded flags a record as delivered. A flagged record is deleted
// without being sent again.
func (s *Store) MarkUploaded(ctx context.Context, id string) error {
	return s.modifyUpload(ctx, "mark_uploaded", id, func(p *models.PendingUpload) {
		p.Uploaded = true
	})
}

// RecordUploadFailure bumps the attempt count of a record.
func (s *Store) RecordUploadFailure(ctx context.Context, id string, cause error) error {
	return s.modifyUpload(ctx, "record_upload_failure", id, func(p *models.PendingUpload) {
		p.Attempts++
		if cause != nil {
			p.LastError = cause.Error()
		}
	})
}

// DeletePendingUpload removes a record, then its files. The record is gone
// before the files are, so a crash in between leaves only orphan files.
func (s *Store) DeletePendingUpload(ctx context.Context, id string) error {
	var files []string
	err := s.updateRetry(ctx, "delete_upload", func(txn *badger.Txn) error {
		files = files[:0]
		var p models.PendingUpload
		ok, err := getJSON(txn, prefixUpload+id, &p)
		if err != nil && !errors.Is(err, ErrCorruptRecord) {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		files = append(files, p.PicturePath, p.TicketPath)
		return txn.Delete([]byte(prefixUpload + id))
	})
	if err != nil {
		return err
	}
	metrics.PendingUploads.Dec()
	s.RemoveFiles(files...)
	return nil
}
