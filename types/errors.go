// Copyright 2024 Coinbase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import "errors"

var (
	// ErrBlockNotFound is returned by an adapter when the requested
	// height is not (yet) available. The pipeline logs and skips the
	// height without advancing the checkpoint.
	ErrBlockNotFound = errors.New("block not found")

	// ErrSubscriptionUnsupported is returned by adapters that cannot
	// push new heights; the monitor falls back to polling.
	ErrSubscriptionUnsupported = errors.New("subscription unsupported")

	// ErrCheckpointMismatch indicates the checkpoint read back after a
	// write did not match the written height. It aborts the tick.
	ErrCheckpointMismatch = errors.New("checkpoint verify mismatch")

	// ErrBalanceNotFound is raised when a confirmed deposit has no
	// matching wallet balance row. The deposit stays confirmed but
	// uncredited; an operator must intervene.
	ErrBalanceNotFound = errors.New("wallet balance row not found")

	// ErrTokenNotConfigured is raised when a chain's mandatory native
	// token row (e.g. BTC, XRP) is missing from the registry.
	ErrTokenNotConfigured = errors.New("native token not configured")
)

// TransientError wraps a failure the caller may retry: network errors,
// 5xx responses and rate limits. RateLimited selects the longer retry
// schedule used for TRON's 403 responses.
type TransientError struct {
	Err         error
	RateLimited bool
}

func (e *TransientError) Error() string {
	if e.RateLimited {
		return "rate limited: " + e.Err.Error()
	}
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// RateLimited marks err as a rate-limit rejection.
func RateLimited(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err, RateLimited: true}
}

// IsTransient reports whether err may be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRateLimited reports whether err came from a rate-limit rejection.
func IsRateLimited(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.RateLimited
}
