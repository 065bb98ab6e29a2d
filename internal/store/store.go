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
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/retry"
)

// Store errors.
var (
	// ErrNotInitialized is returned by installation accessors before the
	// first successful sync.
	ErrNotInitialized = errors.New("store not initialized")

	// ErrWriteConflict is returned when a transaction loses an optimistic
	// concurrency race.
	ErrWriteConflict = errors.New("store write conflict")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")

	// ErrNoCodes is returned by PopCode on an empty pool.
	ErrNoCodes = errors.New("no unclaimed codes")

	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrCorruptRecord is returned with a partially decoded record that
	// cannot be used.
	ErrCorruptRecord = errors.New("corrupt record")
)

const (
	keyInstallation   = "installation"
	keyPlace          = "installation/place"
	keyEvent          = "installation/event"
	keyTicketTemplate = "installation/ticket_template"
	prefixCode        = "code/"
	prefixUpload      = "upload/"
	prefixCursor      = "cursor/"
	keyTicketCounter  = "counter/tickets"
	keyPaperLevel     = "gauge/paper"
)

// Store is the durable local state. It is safe for concurrent use.
type Store struct {
	db  *badger.DB
	cfg Config

	mu     sync.RWMutex
	closed bool

	// popMu serializes code pops, which all contend for the first key.
	popMu sync.Mutex

	// recovered is set when Open had to discard a corrupt database.
	recovered bool
}

// Open opens the store at cfg.Path, creating it if needed. A database that
// cannot be opened for any reason other than a held directory lock is moved
// aside and replaced by an empty one.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := prepareMediaDirs(cfg.MediaDir); err != nil {
		return nil, err
	}

	db, err := badger.Open(badgerOptions(cfg))
	recovered := false
	if err != nil {
		if cfg.InMemory || isLockError(err) {
			return nil, fmt.Errorf("open BadgerDB: %w", err)
		}
		logging.Error().Err(err).Str("path", cfg.Path).Msg("Store unreadable, starting empty")

		aside := fmt.Sprintf("%s.corrupt-%d", cfg.Path, time.Now().Unix())
		if rerr := os.Rename(cfg.Path, aside); rerr != nil && !os.IsNotExist(rerr) {
			return nil, fmt.Errorf("move corrupt store aside: %w", rerr)
		}
		db, err = badger.Open(badgerOptions(cfg))
		if err != nil {
			return nil, fmt.Errorf("open BadgerDB after recovery: %w", err)
		}
		recovered = true
	}

	s := &Store{db: db, cfg: cfg, recovered: recovered}
	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Bool("recovered", recovered).
		Msg("Store opened")
	return s, nil
}

// OpenForTesting opens an in-memory store with a media directory under dir.
func OpenForTesting(dir string) (*Store, error) {
	cfg := DefaultConfig("", dir)
	cfg.InMemory = true
	cfg.SyncWrites = false
	cfg.WriteRetryDelay = time.Millisecond
	return Open(cfg)
}

func badgerOptions(cfg Config) badger.Options {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	// The working set is tiny; keep Badger's memory use low on the Pi.
	opts.MemTableSize = 16 << 20
	opts.ValueLogFileSize = 64 << 20
	opts.NumCompactors = 2
	opts.Logger = badgerLogger{}
	return opts
}

func isLockError(err error) bool {
	return strings.Contains(err.Error(), "Cannot acquire directory lock")
}

// Recovered reports whether Open discarded a corrupt database.
func (s *Store) Recovered() bool {
	return s.recovered
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Close flushes and closes the database, bounded by CloseTimeout.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	timeout := s.cfg.CloseTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	done := make(chan error, 1)
	go func() { done <- s.db.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Store closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("store close timed out after %v", timeout)
	}
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// update runs fn in a read-write transaction, reporting lost races as
// ErrWriteConflict.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return ErrWriteConflict
	}
	return err
}

// ConflictPolicy returns the retry policy for read-modify-write calls.
func (s *Store) ConflictPolicy(name string) retry.Policy {
	p := retry.DefaultPolicy(name)
	p.MaxAttempts = s.cfg.WriteRetryAttempts
	if s.cfg.WriteRetryDelay > 0 {
		p.InitialDelay = s.cfg.WriteRetryDelay
		p.MaxDelay = 25 * s.cfg.WriteRetryDelay
	}
	p.Retryable = IsWriteConflict
	return p
}

// IsWriteConflict reports whether err is an optimistic concurrency loss.
func IsWriteConflict(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}

// updateRetry runs fn through the conflict retry policy.
func (s *Store) updateRetry(ctx context.Context, name string, fn func(txn *badger.Txn) error) error {
	return retry.Do(ctx, s.ConflictPolicy(name), func(context.Context) error {
		return s.update(fn)
	})
}

// getJSON decodes key into v. It reports false when the key is absent.
func getJSON(txn *badger.Txn, key string, v interface{}) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
	if err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, key, err)
	}
	return true, nil
}

func setJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

// prefixKeys returns copies of every key under prefix, in order.
func prefixKeys(txn *badger.Txn, prefix string, limit int) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys
}

// badgerLogger routes Badger's internal logging into zerolog at one level
// below Badger's own so routine compaction chatter stays out of info.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{}) {
	logging.Error().Str("component", "badger").Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Warningf(f string, v ...interface{}) {
	logging.Warn().Str("component", "badger").Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(f string, v ...interface{}) {
	logging.Debug().Str("component", "badger").Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Debugf(f string, v ...interface{}) {
	logging.Trace().Str("component", "badger").Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}
