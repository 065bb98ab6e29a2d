// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package models

import "time"

// PendingUpload is a captured picture and its rendered ticket waiting to be
// sent to the remote. The files referenced by PicturePath and TicketPath are
// written before the record and removed only after the record is deleted.
type PendingUpload struct {
	ID           string    `json:"id"`
	PicturePath  string    `json:"picture_path"`
	TicketPath   string    `json:"ticket_path"`
	Taken        time.Time `json:"taken"`
	PlaceID      string    `json:"place_id,omitempty"`
	EventID      string    `json:"event_id,omitempty"`
	PhotoboothID string    `json:"photobooth_id"`
	Code         string    `json:"code"`
	Uploaded     bool      `json:"uploaded"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error,omitempty"`
}

// TicketMetadata is the form metadata sent along with an uploaded ticket.
type TicketMetadata struct {
	Taken        time.Time `json:"taken"`
	PlaceID      string    `json:"place,omitempty"`
	EventID      string    `json:"event,omitempty"`
	PhotoboothID string    `json:"photobooth"`
	Code         string    `json:"code"`
}

// Metadata returns the upload metadata of the record.
func (p *PendingUpload) Metadata() TicketMetadata {
	return TicketMetadata{
		Taken:        p.Taken,
		PlaceID:      p.PlaceID,
		EventID:      p.EventID,
		PhotoboothID: p.PhotoboothID,
		Code:         p.Code,
	}
}

// DeviceReport is the body of PATCH device. Nil fields are omitted.
type DeviceReport struct {
	PaperLevel   *float64 `json:"paper_level,omitempty"`
	MACAddresses []string `json:"mac_addresses,omitempty"`
}

// ClaimCodesRequest is the body of POST codes/claim.
type ClaimCodesRequest struct {
	Number int `json:"number" validate:"required,min=1,max=100000"`
}

// ClaimCodesResponse is returned by POST codes/claim.
type ClaimCodesResponse struct {
	Codes []string `json:"codes" validate:"dive,required"`
}
