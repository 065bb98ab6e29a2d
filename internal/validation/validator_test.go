// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/models"
)

func validInstallation() *models.Installation {
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.Installation{
		ID:           "inst-1",
		PhotoboothID: "pb-1",
		Place:        &models.Place{ID: "p1", Name: "Cafe", Timezone: "Europe/Paris", Modified: now},
		TicketTemplate: &models.TicketTemplate{
			ID:       "t1",
			HTML:     "<p>{{.Code}}</p>",
			Modified: now,
			TextVariables: []models.TextVariable{
				{ID: "v1", Name: "quote", Mode: models.ModeRandom, Items: []models.TextItem{{ID: "i1", Text: "hi"}}},
			},
			Images: []models.Image{{ID: "img1", URL: "https://example.com/a.png"}},
		},
	}
}

func TestStructAcceptsValidInstallation(t *testing.T) {
	if err := Struct(validInstallation()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStructRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Installation)
		wantTag string
		wantNS  string
	}{
		{
			name:    "missing photobooth id",
			mutate:  func(i *models.Installation) { i.PhotoboothID = "" },
			wantTag: "required",
			wantNS:  "photobooth_id",
		},
		{
			name:    "unknown mode",
			mutate:  func(i *models.Installation) { i.TicketTemplate.TextVariables[0].Mode = "shuffle" },
			wantTag: "oneof",
			wantNS:  "mode",
		},
		{
			name:    "bad timezone",
			mutate:  func(i *models.Installation) { i.Place.Timezone = "Mars/Olympus" },
			wantTag: "timezone",
			wantNS:  "tz",
		},
		{
			name:    "zero template modified",
			mutate:  func(i *models.Installation) { i.TicketTemplate.Modified = time.Time{} },
			wantTag: "required",
			wantNS:  "modified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := validInstallation()
			tt.mutate(inst)

			err := Struct(inst)
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			found := false
			for _, f := range verr.Fields {
				if f.Tag == tt.wantTag && strings.HasSuffix(f.Namespace, tt.wantNS) {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s error on %s in %v", tt.wantTag, tt.wantNS, verr.Fields)
			}
		})
	}
}
