// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package retry provides a bounded retry-with-backoff combinator used around
// durable writes and other operations that can fail transiently.
//
//	err := retry.Do(ctx, store.ConflictPolicy("pop_code"), func(ctx context.Context) error {
//	    return s.popOnce(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Postcard/figure-raspbian-sub000/internal/logging"
	"github.com/Postcard/figure-raspbian-sub000/internal/metrics"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds a retried operation.
type Policy struct {
	// Name labels log lines and metrics.
	Name string

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration

	// Retryable reports whether err is worth another attempt. A nil
	// Retryable retries every error.
	Retryable func(error) bool
}

// DefaultPolicy returns a policy of 5 attempts starting at 20ms.
func DefaultPolicy(name string) Policy {
	return Policy{
		Name:         name,
		MaxAttempts:  5,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = 20 * time.Millisecond
	}
	eb.MaxInterval = p.MaxDelay
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	eb.MaxElapsedTime = 0
	eb.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// Do runs op until it succeeds, returns a non-retryable error, the context
// is cancelled, or the policy is exhausted. Exhaustion returns an error
// matching both ErrExhausted and the last error returned by op.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations returning a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := 0
	var lastErr error

	wrapped := func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		metrics.RecordRetry(p.Name)
		logging.Debug().
			Str("operation", p.Name).
			Int("attempt", attempts).
			Dur("wait", wait).
			Err(err).
			Msg("Retrying operation")
	}

	v, err := backoff.RetryNotifyWithData(wrapped, p.backOff(ctx), notify)
	if err == nil {
		return v, nil
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return v, err
	}
	if p.Retryable != nil && !p.Retryable(err) {
		return v, err
	}

	metrics.RecordRetryExhausted(p.Name)
	logging.Warn().
		Str("operation", p.Name).
		Int("attempts", attempts).
		Err(lastErr).
		Msg("Operation failed after retries")
	return v, errors.Join(ErrExhausted, lastErr)
}
