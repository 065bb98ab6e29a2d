// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package validation checks payloads received from the remote API against
// the validate tags declared in internal/models, using a shared
// go-playground/validator instance.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single failed rule.
type FieldError struct {
	Namespace string
	Tag       string
	Param     string
	Message   string
}

// Error is returned by Struct when at least one rule fails.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i := range e.Fields {
		msgs[i] = e.Fields[i].Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Validator returns the process-wide validator. It caches struct metadata,
// so it must be shared rather than rebuilt per call.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
	})
	return validate
}

// Struct validates s. It returns nil or an *Error.
func Struct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{Fields: []FieldError{{Namespace: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := &Error{Fields: make([]FieldError, len(fieldErrs))}
	for i, fe := range fieldErrs {
		out.Fields[i] = FieldError{
			Namespace: fe.Namespace(),
			Tag:       fe.Tag(),
			Param:     fe.Param(),
			Message:   translate(fe),
		}
	}
	return out
}

func translate(fe validator.FieldError) string {
	ns := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return ns + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", ns, fe.Param())
	case "url":
		return ns + " must be a valid URL"
	case "timezone":
		return ns + " must be an IANA time zone"
	case "min":
		return fmt.Sprintf("%s must be at least %s", ns, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", ns, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", ns, fe.Tag())
	}
}
