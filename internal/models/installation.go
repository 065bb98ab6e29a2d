// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package models

import "time"

// Variable selection modes.
const (
	ModeSequential = "sequential"
	ModeRandom     = "random"
)

// Installation is the configuration bundle of one physical photobooth.
// Place, Event and TicketTemplate are nil when absent remotely.
type Installation struct {
	ID             string          `json:"id" validate:"required"`
	PhotoboothID   string          `json:"photobooth_id" validate:"required"`
	Place          *Place          `json:"place,omitempty"`
	Event          *Event          `json:"event,omitempty"`
	TicketTemplate *TicketTemplate `json:"ticket_template,omitempty"`
}

// Place is where the photobooth is installed.
type Place struct {
	ID       string    `json:"id" validate:"required"`
	Name     string    `json:"name"`
	Timezone string    `json:"tz" validate:"omitempty,timezone"`
	Modified time.Time `json:"modified" validate:"required"`
}

// Location resolves Timezone, falling back to UTC for empty or unknown zones.
func (p *Place) Location() *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Event is the optional event the photobooth is booked for.
type Event struct {
	ID       string    `json:"id" validate:"required"`
	Name     string    `json:"name"`
	Modified time.Time `json:"modified" validate:"required"`
}

// TicketTemplate is the parameterized document rendered for every ticket.
type TicketTemplate struct {
	ID             string          `json:"id" validate:"required"`
	HTML           string          `json:"html"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	TextVariables  []TextVariable  `json:"text_variables" validate:"dive"`
	ImageVariables []ImageVariable `json:"image_variables" validate:"dive"`
	Images         []Image         `json:"images" validate:"dive"`
	Modified       time.Time       `json:"modified" validate:"required"`
}

// TextVariable is a named set of interchangeable strings.
type TextVariable struct {
	ID       string     `json:"id" validate:"required"`
	Name     string     `json:"name" validate:"required"`
	Mode     string     `json:"mode" validate:"oneof=sequential random"`
	Items    []TextItem `json:"items" validate:"dive"`
	Modified time.Time  `json:"modified"`
}

// TextItem is one candidate value of a TextVariable.
type TextItem struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text"`
}

// ImageVariable is a named set of interchangeable images.
type ImageVariable struct {
	ID       string    `json:"id" validate:"required"`
	Name     string    `json:"name" validate:"required"`
	Mode     string    `json:"mode" validate:"oneof=sequential random"`
	Items    []Image   `json:"items" validate:"dive"`
	Modified time.Time `json:"modified"`
}

// Image references a remote media file. Path is the local copy, set once
// the file has been downloaded; it is never sent by the remote.
type Image struct {
	ID   string `json:"id" validate:"required"`
	URL  string `json:"url" validate:"omitempty,url"`
	Path string `json:"path,omitempty"`
}
