// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
	"github.com/Postcard/figure-raspbian-sub000/internal/models"
	"github.com/Postcard/figure-raspbian-sub000/internal/validation"
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	Token        string
	PhotoboothID string

	// Timeout bounds every call except uploads.
	Timeout time.Duration

	// UploadTimeout bounds POST /tickets.
	UploadTimeout time.Duration

	// DownloadRatePerSecond throttles media downloads. Zero is unlimited.
	DownloadRatePerSecond float64

	BreakerTimeout      time.Duration
	BreakerMinRequests  uint32
	BreakerFailureRatio float64

	// MaxResponseBytes bounds decoded JSON bodies.
	MaxResponseBytes int64
}

// Client talks to the Figure backend. It is safe for concurrent use.
type Client struct {
	baseURL      string
	token        string
	photoboothID string
	maxBytes     int64

	httpClient   *http.Client
	uploadClient *http.Client
	limiter      *rate.Limiter

	cb   *gobreaker.CircuitBreaker[interface{}]
	name string
}

// NewClient creates a client from cfg, filling zero values with defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 60 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 10
	}
	if cfg.BreakerFailureRatio <= 0 {
		cfg.BreakerFailureRatio = 0.6
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 64 << 20
	}

	limit := rate.Inf
	if cfg.DownloadRatePerSecond > 0 {
		limit = rate.Limit(cfg.DownloadRatePerSecond)
	}

	name := "figure-api"
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		token:        cfg.Token,
		photoboothID: cfg.PhotoboothID,
		maxBytes:     cfg.MaxResponseBytes,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		uploadClient: &http.Client{Timeout: cfg.UploadTimeout},
		limiter:      rate.NewLimiter(limit, 1),
		cb:           newBreaker(name, cfg.BreakerTimeout, cfg.BreakerMinRequests, cfg.BreakerFailureRatio),
		name:         name,
	}
}

// PhotoboothID returns the device id the client reports as.
func (c *Client) PhotoboothID() string {
	return c.photoboothID
}

// BreakerState returns the circuit breaker state: closed, half-open or open.
func (c *Client) BreakerState() string {
	return stateToString(c.cb.State())
}

// GetInstallation fetches the installation snapshot of this photobooth.
func (c *Client) GetInstallation(ctx context.Context) (*models.Installation, error) {
	endpoint := "get_installation"
	return castResult[models.Installation](c.execute(func() (interface{}, error) {
		req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/photobooths/"+c.photoboothID+"/installation", nil)
		if err != nil {
			return nil, err
		}
		var inst models.Installation
		if err := c.doJSON(c.httpClient, req, endpoint, &inst); err != nil {
			return nil, err
		}
		if err := validation.Struct(&inst); err != nil {
			return nil, fmt.Errorf("%w: installation: %v", ErrMalformedResponse, err)
		}
		return &inst, nil
	}))
}

// ClaimCodes claims n fresh codes for this photobooth.
func (c *Client) ClaimCodes(ctx context.Context, n int) ([]string, error) {
	endpoint := "claim_codes"
	body, err := json.Marshal(models.ClaimCodesRequest{Number: n})
	if err != nil {
		return nil, err
	}
	res, err := castResult[models.ClaimCodesResponse](c.execute(func() (interface{}, error) {
		req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/codes/claim", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		var out models.ClaimCodesResponse
		if err := c.doJSON(c.httpClient, req, endpoint, &out); err != nil {
			return nil, err
		}
		if err := validation.Struct(&out); err != nil {
			return nil, fmt.Errorf("%w: codes: %v", ErrMalformedResponse, err)
		}
		return &out, nil
	}))
	if err != nil {
		return nil, err
	}
	return res.Codes, nil
}

// UpdateDevice sends a device report. Nil fields are left untouched
// remotely.
func (c *Client) UpdateDevice(ctx context.Context, report models.DeviceReport) error {
	endpoint := "update_device"
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = c.execute(func() (interface{}, error) {
		req, err := c.newRequest(ctx, http.MethodPatch, c.baseURL+"/photobooths/"+c.photoboothID, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return nil, c.doJSON(c.httpClient, req, endpoint, nil)
	})
	return err
}

// UploadTicket posts the picture and ticket of p with its metadata.
// Unreadable files fail with ErrLocalFile before any network call.
func (c *Client) UploadTicket(ctx context.Context, p *models.PendingUpload) error {
	endpoint := "upload_ticket"
	body, contentType, err := ticketForm(p)
	if err != nil {
		return err
	}
	_, err = c.execute(func() (interface{}, error) {
		req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/tickets", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return nil, c.doJSON(c.uploadClient, req, endpoint, nil)
	})
	return err
}

// ticketForm builds the multipart body of an upload.
func ticketForm(p *models.PendingUpload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range []struct{ field, path string }{
		{"picture", p.PicturePath},
		{"ticket", p.TicketPath},
	} {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: %v", ErrLocalFile, f.path, err)
		}
		if len(data) == 0 {
			return nil, "", fmt.Errorf("%w: %s is empty", ErrLocalFile, f.path)
		}
		part, err := w.CreateFormFile(f.field, filepath.Base(f.path))
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}

	meta := p.Metadata()
	fields := [][2]string{
		{"taken", meta.Taken.UTC().Format(time.RFC3339)},
		{"photobooth", meta.PhotoboothID},
		{"code", meta.Code},
		{"place", meta.PlaceID},
		{"event", meta.EventID},
	}
	for _, kv := range fields {
		if kv[1] == "" {
			continue
		}
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Download fetches a media file and hands its body to fn. Downloads are
// throttled by the client's rate limiter.
func (c *Client) Download(ctx context.Context, mediaURL string, fn func(io.Reader) error) error {
	endpoint := "download"
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if strings.HasPrefix(mediaURL, "/") {
		mediaURL = c.baseURL + mediaURL
	}
	_, err := c.execute(func() (interface{}, error) {
		req, err := c.newRequest(ctx, http.MethodGet, mediaURL, nil)
		if err != nil {
			return nil, err
		}
		// Media may live on a CDN; only the backend gets the token.
		if !strings.HasPrefix(mediaURL, c.baseURL+"/") {
			req.Header.Del("Authorization")
		}
		resp, err := c.do(c.httpClient, req, endpoint)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()
		if err := fn(resp.Body); err != nil {
			return nil, fmt.Errorf("%w: download %s: %w", ErrRemoteUnavailable, mediaURL, err)
		}
		return nil, nil
	})
	return err
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "figure-photobooth")
	return req, nil
}

// do sends req and returns a 2xx response. Anything else is classified
// and the body is closed.
func (c *Client) do(client *http.Client, req *http.Request, endpoint string) (*http.Response, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.RemoteRequestDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %s: %w", ErrRemoteUnavailable, endpoint, err)
	}
	metrics.RemoteRequestDuration.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError(endpoint, resp.StatusCode, resp.Body)
	}
	return resp, nil
}

// doJSON sends req and decodes a 2xx body into out. A nil out discards
// the body.
func (c *Client) doJSON(client *http.Client, req *http.Request, endpoint string, out interface{}) error {
	resp, err := c.do(client, req, endpoint)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, c.maxBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, endpoint, err)
	}
	return nil
}
