// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RenderContext is the data a ticket template is executed with.
//
// Texts and Images are keyed by variable id. Images also holds the static
// template images keyed by image id.
type RenderContext struct {
	Datetime    time.Time
	Code        string
	Counter     uint64
	Picture     template.URL
	Title       string
	Description string
	Place       string
	Event       string
	Texts       map[string]string
	Images      map[string]template.URL
}

// Renderer turns a ticket template into HTML.
type Renderer interface {
	Render(html string, rc RenderContext) (string, error)
}

// Rasterizer turns ticket HTML into an encoded image.
type Rasterizer interface {
	RenderToImage(ctx context.Context, html string) ([]byte, error)
}

var templateFuncs = template.FuncMap{
	"date": func(layout string, t time.Time) string {
		return t.Format(layout)
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// TemplateRenderer renders tickets with html/template.
type TemplateRenderer struct{}

func (TemplateRenderer) Render(html string, rc RenderContext) (string, error) {
	tpl, err := template.New("ticket").Funcs(templateFuncs).Option("missingkey=zero").Parse(html)
	if err != nil {
		return "", fmt.Errorf("parse ticket template: %w", err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, rc); err != nil {
		return "", fmt.Errorf("execute ticket template: %w", err)
	}
	return buf.String(), nil
}

// fileURL returns a file URL the rasterizer can load path from.
func fileURL(path string) template.URL {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return template.URL(u.String())
}

// ExecRasterizer runs an HTML to image tool invoked as
// "binary args... input.html output.png", e.g. wkhtmltoimage.
type ExecRasterizer struct {
	binary string
	args   []string
}

func NewExecRasterizer(binary string, args []string) *ExecRasterizer {
	return &ExecRasterizer{binary: binary, args: args}
}

func (r *ExecRasterizer) RenderToImage(ctx context.Context, html string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "figure-render-*")
	if err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "ticket.html")
	out := filepath.Join(dir, "ticket.png")
	if err := os.WriteFile(in, []byte(html), 0o600); err != nil {
		return nil, fmt.Errorf("write ticket html: %w", err)
	}

	args := append(slices.Clone(r.args), in, out)
	cmd := exec.CommandContext(ctx, r.binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("rasterize ticket: %w: %s", err, strings.TrimSpace(string(output)))
	}

	img, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read ticket image: %w", err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("rasterize ticket: empty image")
	}
	return img, nil
}
