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
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"

	"github.com/coinbase/deposit-tracker-sdk/types"
)

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return types.Transient(fmt.Errorf("socket closed"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_PermanentErrorNotRetried(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		return types.ErrBlockNotFound
	})
	assert.ErrorIs(t, err, types.ErrBlockNotFound)
	assert.Equal(t, 1, attempts)
}

func TestRetry_TransientBudgetExhausted(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		return types.Transient(fmt.Errorf("503"))
	})
	assert.Error(t, err)
	assert.Equal(t, maxAttempts, attempts)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func() error {
		return types.Transient(fmt.Errorf("unreachable"))
	})
	assert.Error(t, err)
}

func TestLinearBackOffSchedule(t *testing.T) {
	b := &linearBackOff{max: maxAttempts}
	assert.Equal(t, retryBase, b.NextBackOff())
	assert.Equal(t, 2*retryBase, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestLinearBackOffRateLimitFloor(t *testing.T) {
	b := &linearBackOff{max: rateLimitAttempts, floor: rateLimitFloor}

	// Early delays are raised to the floor; later ones follow the
	// linear schedule.
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}
