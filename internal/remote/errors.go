// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package remote

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrRemoteUnavailable covers transient failures worth retrying later.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrRemoteRejected is matched by every *RejectedError.
	ErrRemoteRejected = errors.New("remote rejected request")

	// ErrMalformedResponse is returned for payloads that fail to decode or
	// validate.
	ErrMalformedResponse = errors.New("malformed remote response")

	// ErrLocalFile is returned when an upload file cannot be read.
	ErrLocalFile = errors.New("local file unreadable")
)

// RejectedError is a 4xx answer. Retrying the same request will not help.
type RejectedError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected with status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrRemoteRejected) true.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRemoteRejected
}

// Unauthorized reports whether the remote refused the booth itself rather
// than the request: 401, 403 or 404. It clears once the token or the
// photobooth registration is fixed.
func (e *RejectedError) Unauthorized() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// IsRejected reports whether err is a 4xx answer.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRemoteRejected)
}

// IsPermanentRejection reports whether err is a 4xx answer about the
// request itself, such as a malformed or duplicate ticket. Sending it again
// can never succeed.
func IsPermanentRejection(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej) && !rej.Unauthorized()
}

// maxErrorBodySize bounds how much of an error body is kept.
const maxErrorBodySize = 4 * 1024

func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	if len(body) == maxErrorBodySize {
		return string(body) + "... (truncated)"
	}
	return string(body)
}

// statusError classifies a non-2xx status. 408 and 429 are transient.
func statusError(endpoint string, status int, body io.Reader) error {
	text := readBodyForError(body)
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return &RejectedError{Endpoint: endpoint, StatusCode: status, Body: text}
	}
	return fmt.Errorf("%w: %s returned status %d: %s", ErrRemoteUnavailable, endpoint, status, text)
}
