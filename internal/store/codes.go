// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
	"github.com/Postcard/figure-raspbian-sub000/internal/retry"
)

// PopCode removes and returns one unclaimed code. Pops in this process run
// one at a time; a pop racing any other writer of the key conflicts and
// retries, so a code is never returned twice.
func (s *Store) PopCode(ctx context.Context) (string, error) {
	s.popMu.Lock()
	defer s.popMu.Unlock()

	code, err := retry.DoValue(ctx, s.ConflictPolicy("pop_code"), func(context.Context) (string, error) {
		var code string
		err := s.update(func(txn *badger.Txn) error {
			keys := prefixKeys(txn, prefixCode, 1)
			if len(keys) == 0 {
				return ErrNoCodes
			}
			// Iterating registered the key as read, so a concurrent pop
			// of the same key fails to commit.
			code = strings.TrimPrefix(string(keys[0]), prefixCode)
			return txn.Delete(keys[0])
		})
		return code, err
	})
	if err != nil {
		return "", err
	}
	metrics.CodesRemaining.Dec()
	return code, nil
}

// AddCodes bulk inserts codes. Duplicates of codes already present collapse
// into one key. It returns the number of codes written.
func (s *Store) AddCodes(ctx context.Context, codes []string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	n := 0
	for _, c := range codes {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if err := wb.Set([]byte(prefixCode+c), nil); err != nil {
			return 0, fmt.Errorf("queue code: %w", err)
		}
		n++
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush codes: %w", err)
	}

	if count, err := s.CountCodes(ctx); err == nil {
		metrics.CodesRemaining.Set(float64(count))
	}
	return n, nil
}

// CountCodes returns the number of unclaimed codes.
func (s *Store) CountCodes(_ context.Context) (int, error) {
	n := 0
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixCode)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
