// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package sync

import (
	"time"

	"github.com/Postcard/figure-raspbian-sub000/internal/models"
)

// mergeEntity applies the last-modified-wins rule to one entity. It returns
// the value to store and whether anything must be written; a nil value with
// write=true deletes the local entity.
func mergeEntity[T any](local, remote *T, id func(*T) string, modified func(*T) time.Time) (*T, bool) {
	switch {
	case remote == nil:
		return nil, local != nil
	case local == nil, id(local) != id(remote):
		v := *remote
		return &v, true
	case modified(remote).After(modified(local)):
		v := *remote
		return &v, true
	default:
		return local, false
	}
}

func placeID(p *models.Place) string          { return p.ID }
func placeModified(p *models.Place) time.Time { return p.Modified }
func eventID(e *models.Event) string          { return e.ID }
func eventModified(e *models.Event) time.Time { return e.Modified }

// mergeTemplate reconciles the local template with the remote one. paths
// maps media URLs to downloaded files; images are given the path of their
// URL when present. Inputs are never modified.
func mergeTemplate(local, remote *models.TicketTemplate, paths map[string]string) (*models.TicketTemplate, bool) {
	if remote == nil {
		return nil, local != nil
	}
	if local == nil || local.ID != remote.ID {
		return freshTemplate(remote, paths), true
	}

	next := *local
	changed := false
	if remote.Modified.After(local.Modified) {
		next.HTML = remote.HTML
		next.Title = remote.Title
		next.Description = remote.Description
		next.Modified = remote.Modified
		changed = true
	}

	var c bool
	next.TextVariables, c = mergeTextVariables(local.TextVariables, remote.TextVariables)
	changed = changed || c
	next.ImageVariables, c = mergeImageVariables(local.ImageVariables, remote.ImageVariables, paths)
	changed = changed || c
	next.Images, c = mergeImages(local.Images, remote.Images, paths)
	changed = changed || c

	if !changed {
		return local, false
	}
	return &next, true
}

func freshTemplate(remote *models.TicketTemplate, paths map[string]string) *models.TicketTemplate {
	next := *remote
	next.TextVariables = make([]models.TextVariable, len(remote.TextVariables))
	for i, v := range remote.TextVariables {
		v.Items = append([]models.TextItem(nil), v.Items...)
		next.TextVariables[i] = v
	}
	next.ImageVariables = make([]models.ImageVariable, len(remote.ImageVariables))
	for i, v := range remote.ImageVariables {
		v.Items, _ = mergeImages(nil, v.Items, paths)
		next.ImageVariables[i] = v
	}
	next.Images, _ = mergeImages(nil, remote.Images, paths)
	return &next
}

func mergeTextVariables(local, remote []models.TextVariable) ([]models.TextVariable, bool) {
	byID := make(map[string]models.TextVariable, len(local))
	for _, v := range local {
		byID[v.ID] = v
	}

	out := make([]models.TextVariable, 0, len(remote))
	changed := false
	for i, r := range remote {
		if i >= len(local) || local[i].ID != r.ID {
			changed = true
		}
		l, ok := byID[r.ID]
		if !ok {
			r.Items = append([]models.TextItem(nil), r.Items...)
			out = append(out, r)
			changed = true
			continue
		}
		v := l
		newer := r.Modified.After(l.Modified)
		if newer {
			v.Name, v.Mode, v.Modified = r.Name, r.Mode, r.Modified
			changed = true
		}
		var c bool
		v.Items, c = mergeTextItems(l.Items, r.Items, newer)
		changed = changed || c
		out = append(out, v)
	}
	if len(out) != len(local) {
		changed = true
	}
	if !changed {
		return local, false
	}
	return out, true
}

// mergeTextItems reconciles items by id and takes the remote order. Texts
// of kept items are refreshed only when the variable itself is newer
// remotely.
func mergeTextItems(local, remote []models.TextItem, overwrite bool) ([]models.TextItem, bool) {
	byID := make(map[string]models.TextItem, len(local))
	for _, it := range local {
		byID[it.ID] = it
	}

	out := make([]models.TextItem, 0, len(remote))
	changed := false
	for i, r := range remote {
		if i >= len(local) || local[i].ID != r.ID {
			changed = true
		}
		l, ok := byID[r.ID]
		switch {
		case !ok:
			out = append(out, r)
			changed = true
		case overwrite && l.Text != r.Text:
			out = append(out, r)
			changed = true
		default:
			out = append(out, l)
		}
	}
	if len(out) != len(local) {
		changed = true
	}
	if !changed {
		return local, false
	}
	return out, true
}

func mergeImageVariables(local, remote []models.ImageVariable, paths map[string]string) ([]models.ImageVariable, bool) {
	byID := make(map[string]models.ImageVariable, len(local))
	for _, v := range local {
		byID[v.ID] = v
	}

	out := make([]models.ImageVariable, 0, len(remote))
	changed := false
	for i, r := range remote {
		if i >= len(local) || local[i].ID != r.ID {
			changed = true
		}
		l, ok := byID[r.ID]
		if !ok {
			r.Items, _ = mergeImages(nil, r.Items, paths)
			out = append(out, r)
			changed = true
			continue
		}
		v := l
		if r.Modified.After(l.Modified) {
			v.Name, v.Mode, v.Modified = r.Name, r.Mode, r.Modified
			changed = true
		}
		var c bool
		v.Items, c = mergeImages(l.Items, r.Items, paths)
		changed = changed || c
		out = append(out, v)
	}
	if len(out) != len(local) {
		changed = true
	}
	if !changed {
		return local, false
	}
	return out, true
}

// imageKey identifies an image. A new URL under the same id is a new
// image.
func imageKey(img models.Image) string {
	return img.ID + "\x00" + img.URL
}

// mergeImages reconciles images by set difference and takes the remote
// order. Kept images keep their local path unless paths holds a fresh
// download for their URL.
func mergeImages(local, remote []models.Image, paths map[string]string) ([]models.Image, bool) {
	byKey := make(map[string]models.Image, len(local))
	for _, img := range local {
		byKey[imageKey(img)] = img
	}

	out := make([]models.Image, 0, len(remote))
	changed := false
	for i, r := range remote {
		if i >= len(local) || imageKey(local[i]) != imageKey(r) {
			changed = true
		}
		if l, ok := byKey[imageKey(r)]; ok {
			if p, ok := paths[r.URL]; ok && p != l.Path {
				l.Path = p
				changed = true
			}
			out = append(out, l)
			continue
		}
		out = append(out, models.Image{ID: r.ID, URL: r.URL, Path: paths[r.URL]})
		changed = true
	}
	if len(out) != len(local) {
		changed = true
	}
	if !changed {
		return local, false
	}
	return out, true
}

// templateImages returns every image of t.
func templateImages(t *models.TicketTemplate) []models.Image {
	if t == nil {
		return nil
	}
	imgs := append([]models.Image(nil), t.Images...)
	for _, v := range t.ImageVariables {
		imgs = append(imgs, v.Items...)
	}
	return imgs
}

// mediaPaths returns the set of local files t references.
func mediaPaths(t *models.TicketTemplate) map[string]struct{} {
	set := make(map[string]struct{})
	for _, img := range templateImages(t) {
		if img.Path != "" {
			set[img.Path] = struct{}{}
		}
	}
	return set
}

// variableIDs returns the ids of every variable of t.
func variableIDs(t *models.TicketTemplate) map[string]struct{} {
	set := make(map[string]struct{})
	if t == nil {
		return set
	}
	for _, v := range t.TextVariables {
		set[v.ID] = struct{}{}
	}
	for _, v := range t.ImageVariables {
		set[v.ID] = struct{}{}
	}
	return set
}
