// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/models"
)

type installationRecord struct {
	ID           string `json:"id"`
	PhotoboothID string `json:"photobooth_id"`
}

// requireInitialized fails with ErrNotInitialized when no sync has stored
// the installation identity yet, or when that record is unreadable.
func requireInitialized(txn *badger.Txn) (*installationRecord, error) {
	var rec installationRecord
	ok, err := getJSON(txn, keyInstallation, &rec)
	if errors.Is(err, ErrCorruptRecord) {
		logging.Warn().Err(err).Msg("Installation record unreadable, treating store as not initialized")
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return &rec, nil
}

// getEntity loads an optional nested entity. Unreadable entities are
// reported as absent so the next sync recreates them.
func getEntity[T any](txn *badger.Txn, key string) (*T, error) {
	var v T
	ok, err := getJSON(txn, key, &v)
	if errors.Is(err, ErrCorruptRecord) {
		logging.Warn().Err(err).Str("key", key).Msg("Entity unreadable, treating as absent")
		return nil, nil
	}
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// Initialized reports whether a sync has stored the installation.
func (s *Store) Initialized() bool {
	err := s.view(func(txn *badger.Txn) error {
		_, err := requireInitialized(txn)
		return err
	})
	return err == nil
}

// Installation returns a consistent snapshot of the installation and its
// nested entities.
func (s *Store) Installation(_ context.Context) (*models.Installation, error) {
	var inst *models.Installation
	err := s.view(func(txn *badger.Txn) error {
		rec, err := requireInitialized(txn)
		if err != nil {
			return err
		}
		inst = &models.Installation{ID: rec.ID, PhotoboothID: rec.PhotoboothID}
		if inst.Place, err = getEntity[models.Place](txn, keyPlace); err != nil {
			return err
		}
		if inst.Event, err = getEntity[models.Event](txn, keyEvent); err != nil {
			return err
		}
		inst.TicketTemplate, err = getEntity[models.TicketTemplate](txn, keyTicketTemplate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// SaveInstallationIdentity stores the installation id, marking the store
// initialized.
func (s *Store) SaveInstallationIdentity(ctx context.Context, id, photoboothID string) error {
	rec := installationRecord{ID: id, PhotoboothID: photoboothID}
	return s.updateRetry(ctx, "save_installation", func(txn *badger.Txn) error {
		var cur installationRecord
		ok, err := getJSON(txn, keyInstallation, &cur)
		if err == nil && ok && cur == rec {
			return nil
		}
		return setJSON(txn, keyInstallation, rec)
	})
}

// Place returns the local place, nil when absent.
func (s *Store) Place(_ context.Context) (*models.Place, error) {
	return loadNested[models.Place](s, keyPlace)
}

// Event returns the local event, nil when absent.
func (s *Store) Event(_ context.Context) (*models.Event, error) {
	return loadNested[models.Event](s, keyEvent)
}

// TicketTemplate returns the local ticket template, nil when absent.
func (s *Store) TicketTemplate(_ context.Context) (*models.TicketTemplate, error) {
	return loadNested[models.TicketTemplate](s, keyTicketTemplate)
}

func loadNested[T any](s *Store, key string) (*T, error) {
	var v *T
	err := s.view(func(txn *badger.Txn) error {
		if _, err := requireInitialized(txn); err != nil {
			return err
		}
		var err error
		v, err = getEntity[T](txn, key)
		return err
	})
	return v, err
}

// ModifyFunc computes the next value of an entity from its current value
// (nil when absent). Returning write=false leaves the entity untouched;
// returning a nil next with write=true deletes it. It may run more than
// once when transactions conflict and must not have side effects.
type ModifyFunc[T any] func(cur *T) (next *T, write bool, err error)

// modifyNested applies fn to the entity under key in one transaction,
// retrying on conflict. It reports whether a write happened.
func modifyNested[T any](ctx context.Context, s *Store, name, key string, fn ModifyFunc[T]) (bool, error) {
	var wrote bool
	err := s.updateRetry(ctx, name, func(txn *badger.Txn) error {
		wrote = false
		cur, err := getEntity[T](txn, key)
		if err != nil {
			return err
		}
		next, write, err := fn(cur)
		if err != nil || !write {
			return err
		}
		wrote = true
		if next == nil {
			if cur == nil {
				wrote = false
				return nil
			}
			return txn.Delete([]byte(key))
		}
		return setJSON(txn, key, next)
	})
	return wrote, err
}

// ModifyPlace atomically replaces the place with fn's result.
func (s *Store) ModifyPlace(ctx context.Context, fn ModifyFunc[models.Place]) (bool, error) {
	return modifyNested(ctx, s, "modify_place", keyPlace, fn)
}

// ModifyEvent atomically replaces the event with fn's result.
func (s *Store) ModifyEvent(ctx context.Context, fn ModifyFunc[models.Event]) (bool, error) {
	return modifyNested(ctx, s, "modify_event", keyEvent, fn)
}

// ModifyTicketTemplate atomically replaces the template with fn's result.
func (s *Store) ModifyTicketTemplate(ctx context.Context, fn ModifyFunc[models.TicketTemplate]) (bool, error) {
	return modifyNested(ctx, s, "modify_ticket_template", keyTicketTemplate, fn)
}
