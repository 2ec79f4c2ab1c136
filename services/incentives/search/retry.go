// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Default: 1s
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries. Default: 30s
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier for exponential backoff.
	// Default: 2.0
	BackoffFactor float64

	// JitterFactor is the maximum additive jitter as a fraction of the
	// backoff (0-1). Default: 0.25
	JitterFactor float64
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.25,
	}
}

// RetryableFunc is a function that can be retried. It should return nil
// on success, or an error. IsRetryable decides whether the error
// triggers another attempt.
type RetryableFunc func(ctx context.Context, attempt int) error

// Retry executes fn with exponential backoff, at most 1+MaxRetries
// attempts. Non-retryable errors return immediately; context
// cancellation aborts any pending wait.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == config.MaxRetries {
			return lastErr
		}

		wait := withJitter(backoff, config.JitterFactor)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffFactor)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
	return lastErr
}

// withJitter adds 0 to jitterFactor of extra wait so synchronized
// workers do not hammer the provider in lockstep.
func withJitter(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}
	return time.Duration(float64(base) * (1 + rand.Float64()*jitterFactor))
}

// IsRetryable classifies an error by its text. Rate limits, server
// errors, timeouts, and connection failures are retryable; client errors
// such as bad requests and auth failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())

	for _, code := range []string{"400", "bad request", "401", "403", "unauthorized", "authentication", "404", "not found"} {
		if strings.Contains(s, code) {
			return false
		}
	}
	for _, term := range []string{"429", "rate", "limit", "overloaded", "500", "502", "503", "504", "timeout", "timed out", "connection", "network"} {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
