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

package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/coinbase/deposit-tracker-sdk/types"
)

const (
	// retryBase is the unit of the linear backoff schedule: the delay
	// before attempt N+1 is retryBase * (N+1).
	retryBase = 1 * time.Second

	// maxAttempts bounds transient-error retries.
	maxAttempts = 3

	// rateLimitAttempts and rateLimitFloor govern rate-limited calls
	// (TRON 403): more attempts, never less than the floor between them.
	rateLimitAttempts = 5
	rateLimitFloor    = 2 * time.Second
)

// linearBackOff implements backoff.BackOff with a linearly growing delay.
// The attempt budget and delay floor are adjusted per error class by Retry
// before each wait.
type linearBackOff struct {
	taken uint64
	max   uint64
	floor time.Duration
}

func (b *linearBackOff) Reset() { b.taken = 0 }

func (b *linearBackOff) NextBackOff() time.Duration {
	b.taken++
	if b.taken >= b.max {
		return backoff.Stop
	}
	d := retryBase * time.Duration(b.taken)
	if d < b.floor {
		d = b.floor
	}
	return d
}

// Retry runs op until it succeeds, fails permanently, exhausts its attempt
// budget, or ctx is cancelled. Only errors marked transient by the adapter
// are retried; rate-limited errors get the extended schedule.
func Retry(ctx context.Context, op func() error) error {
	b := &linearBackOff{max: maxAttempts}

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !types.IsTransient(err) {
			return backoff.Permanent(err)
		}
		if types.IsRateLimited(err) {
			b.max = rateLimitAttempts
			b.floor = rateLimitFloor
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(b, ctx))
}
