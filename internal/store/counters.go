// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"

	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
)

func getUint64(txn *badger.Txn, key string) (uint64, bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("%w: %s has %d bytes", ErrCorruptRecord, key, len(val))
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, err == nil, err
}

func setUint64(txn *badger.Txn, key string, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return txn.Set([]byte(key), buf[:])
}

// IncrementTicketCounter adds one to the ticket counter and returns the new
// value. The counter is never reset.
func (s *Store) IncrementTicketCounter(ctx context.Context) (uint64, error) {
	var next uint64
	err := s.updateRetry(ctx, "increment_ticket_counter", func(txn *badger.Txn) error {
		cur, _, err := getUint64(txn, keyTicketCounter)
		if err != nil {
			return err
		}
		next = cur + 1
		return setUint64(txn, keyTicketCounter, next)
	})
	if err != nil {
		return 0, err
	}
	metrics.TicketCounter.Set(float64(next))
	return next, nil
}

// TicketCounter returns the current ticket counter.
func (s *Store) TicketCounter(_ context.Context) (uint64, error) {
	var v uint64
	err := s.view(func(txn *badger.Txn) error {
		var err error
		v, _, err = getUint64(txn, keyTicketCounter)
		return err
	})
	return v, err
}

func (s *Store) readPaper(txn *badger.Txn) (float64, error) {
	bits, ok, err := getUint64(txn, keyPaperLevel)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.cfg.DefaultPaperLevel, nil
	}
	return math.Float64frombits(bits), nil
}

func clampPaper(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// PaperLevel returns the paper gauge in percent.
func (s *Store) PaperLevel(_ context.Context) (float64, error) {
	var v float64
	err := s.view(func(txn *badger.Txn) error {
		var err error
		v, err = s.readPaper(txn)
		return err
	})
	return v, err
}

// SetPaperLevel stores the paper gauge, clamped to [0, 100].
func (s *Store) SetPaperLevel(ctx context.Context, level float64) (float64, error) {
	level = clampPaper(level)
	err := s.updateRetry(ctx, "set_paper_level", func(txn *badger.Txn) error {
		return setUint64(txn, keyPaperLevel, math.Float64bits(level))
	})
	if err != nil {
		return 0, err
	}
	metrics.PaperLevel.Set(level)
	return level, nil
}

// ConsumePaper lowers the paper gauge by percent, flooring at zero, and
// returns the new level.
func (s *Store) ConsumePaper(ctx context.Context, percent float64) (float64, error) {
	var next float64
	err := s.updateRetry(ctx, "consume_paper", func(txn *badger.Txn) error {
		cur, err := s.readPaper(txn)
		if err != nil {
			return err
		}
		next = clampPaper(cur - percent)
		return setUint64(txn, keyPaperLevel, math.Float64bits(next))
	})
	if err != nil {
		return 0, err
	}
	metrics.PaperLevel.Set(next)
	return next, nil
}

// NextSequentialIndex returns the rotation index of a sequential variable
// with n items and advances it. The stored cursor is reduced modulo n, so
// it stays valid when the item set shrinks.
func (s *Store) NextSequentialIndex(ctx context.Context, variableID string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("variable %s has no items", variableID)
	}
	key := prefixCursor + variableID
	var idx int
	err := s.updateRetry(ctx, "next_sequential_index", func(txn *badger.Txn) error {
		cur, _, err := getUint64(txn, key)
		if errors.Is(err, ErrCorruptRecord) {
			cur, err = 0, nil
		}
		if err != nil {
			return err
		}
		idx = int(cur % uint64(n))
		return setUint64(txn, key, uint64(idx+1)%uint64(n))
	})
	return idx, err
}

// DeleteSequentialCursor forgets the rotation of a removed variable.
func (s *Store) DeleteSequentialCursor(ctx context.Context, variableID string) error {
	return s.updateRetry(ctx, "delete_cursor", func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixCursor + variableID))
	})
}
